package constants

const (
	// RootDir is the repository directory that holds one sub-directory per
	// application and one sub-directory per deployable resource below that.
	RootDir = "cloud-formation"

	// ConfigFileName is the deployment config file looked up in a resource path.
	// The .yaml extension is tried first, then .yml.
	ConfigFileName = "deployment-config"
)

// ConfigFileNames lists the deployment config file names in lookup order.
var ConfigFileNames = []string{
	ConfigFileName + ".yaml",
	ConfigFileName + ".yml",
}

// Matrix bucket names. Environments with any other name only reach the
// custom bucket.
const (
	EnvDev    = "dev"
	EnvInt    = "int"
	EnvProd   = "prod"
	EnvCustom = "custom"
)
