package store

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize over total items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeProducts keeps the last product of every name, in first-seen order.
func DedupeProducts(in []TicketProduct) []TicketProduct {
	if len(in) == 0 {
		return nil
	}
	pos := make(map[string]int, len(in))
	out := make([]TicketProduct, 0, len(in))
	for _, p := range in {
		if p.Name == "" {
			continue
		}
		if i, ok := pos[p.Name]; ok {
			out[i] = p
			continue
		}
		pos[p.Name] = len(out)
		out = append(out, p)
	}
	return out
}
