package utils

// MergeByKey applies overrides on top of base. An override whose key already
// exists in base replaces that entry in place; any other override is appended
// in override order. Within the result every key appears exactly once, the
// last value for a key winning.
func MergeByKey[T any](base []T, overrides []T, key func(T) string) []T {
	result := make([]T, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base)+len(overrides))

	for _, item := range base {
		k := key(item)
		if i, ok := index[k]; ok {
			result[i] = item
			continue
		}
		index[k] = len(result)
		result = append(result, item)
	}

	for _, item := range overrides {
		k := key(item)
		if i, ok := index[k]; ok {
			result[i] = item
			continue
		}
		index[k] = len(result)
		result = append(result, item)
	}

	return result
}
