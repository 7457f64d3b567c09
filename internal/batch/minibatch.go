package batch

// Minibatch slices items into consecutive batches. Each batch takes
// int(sizes.Next()) items (at least one); the final batch may be shorter.
// The returned batches share items' backing array.
func Minibatch[T any](items []T, sizes Sizer) [][]T {
	var batches [][]T
	for start := 0; start < len(items); {
		n := int(sizes.Next())
		if n < 1 {
			n = 1
		}
		end := min(start+n, len(items))
		batches = append(batches, items[start:end:end])
		start = end
	}
	return batches
}

// Each walks items batch by batch, stopping at the first error from fn.
func Each[T any](items []T, sizes Sizer, fn func(i int, batch []T) error) error {
	for i, b := range Minibatch(items, sizes) {
		if err := fn(i, b); err != nil {
			return err
		}
	}
	return nil
}
