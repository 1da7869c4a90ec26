package models

// ThreadKey identifies the conversation between two users independent of
// direction.
func ThreadKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}
