package models

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// Parameter is a single CloudFormation stack parameter in the shape used by
// parameter override files.
type Parameter struct {
	ParameterKey   string `json:"ParameterKey"`
	ParameterValue string `json:"ParameterValue"`
}

// Key returns the parameter key. Used for keyed merges.
func (p Parameter) Key() string {
	return p.ParameterKey
}

// Tag is a single CloudFormation stack tag.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// TagKey returns the tag key. Used for keyed merges.
func (t Tag) TagKey() string {
	return t.Key
}

// ToCloudFormationParameters converts parameters into the SDK representation
func ToCloudFormationParameters(pp []Parameter) []types.Parameter {
	results := make([]types.Parameter, 0, len(pp))
	for _, p := range pp {
		results = append(results, types.Parameter{
			ParameterKey:   aws.String(p.ParameterKey),
			ParameterValue: aws.String(p.ParameterValue),
		})
	}
	return results
}

// ToCloudFormationTags converts tags into the SDK representation
func ToCloudFormationTags(tt []Tag) []types.Tag {
	results := make([]types.Tag, 0, len(tt))
	for _, t := range tt {
		results = append(results, types.Tag{
			Key:   aws.String(t.Key),
			Value: aws.String(t.Value),
		})
	}
	return results
}
