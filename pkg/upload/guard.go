package upload

// sizeGuard is a monotonic byte counter with an optional ceiling.
type sizeGuard struct {
	limit int64
	count int64
}

// add counts n more bytes and reports whether the ceiling is now exceeded.
func (g *sizeGuard) add(n int) bool {
	g.count += int64(n)
	return g.exceeds(g.count)
}

// exceeds reports whether size is over the ceiling.
func (g *sizeGuard) exceeds(size int64) bool {
	return g.limit != Unlimited && size > g.limit
}

func (g *sizeGuard) reset() {
	g.count = 0
}
