package secret

// Zero overwrites data with zero bytes in place. Used to scrub
// heap-allocated copies (the raw bytes read from a file or stdin)
// once their contents have been copied into a protected [Buffer].
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
