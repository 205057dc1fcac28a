package world

// BoxCells fills every cell between lo and hi inclusive.
func BoxCells(lo, hi Cell) []Cell {
	var out []Cell
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				out = append(out, Cell{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// HollowBoxCells is the one-cell-thick shell of the box between lo and hi.
func HollowBoxCells(lo, hi Cell) []Cell {
	var out []Cell
	for _, c := range BoxCells(lo, hi) {
		if c.X == lo.X || c.X == hi.X || c.Y == lo.Y || c.Y == hi.Y || c.Z == lo.Z || c.Z == hi.Z {
			out = append(out, c)
		}
	}
	return out
}

// WallCells is a flat wall in the plane x == at, spanning y and z.
func WallCells(at int, loY, hiY, loZ, hiZ int) []Cell {
	return BoxCells(Cell{X: at, Y: loY, Z: loZ}, Cell{X: at, Y: hiY, Z: hiZ})
}
