package anthropic

// BuildCachedSystemBlocks returns the shared evaluation instructions as a
// single system block with a 1-hour cache breakpoint, so every document in a
// batch reuses the cached guidelines.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "1h"},
	}}
}
