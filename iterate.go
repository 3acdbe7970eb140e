package zarr

import "github.com/TuSKan/zarr-index/index"

// forEachPosition calls fn with every point of a finite domain in
// row-major order. The slice passed to fn is reused between calls.
func forEachPosition(domain index.Domain, fn func(point []int64) error) error {
	start, end := domain.Origin(), domain.ExclusiveMax()
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	if len(start) == 0 {
		return fn([]int64{})
	}
	point := make([]int64, len(start))
	copy(point, start)

	for {
		if err := fn(point); err != nil {
			return err
		}

		// Increment
		i := len(start) - 1
		for ; i >= 0; i-- {
			point[i]++
			if point[i] < end[i] {
				break
			}
			point[i] = start[i]
		}
		if i < 0 {
			break
		}
	}
	return nil
}

// rowMajorOffset returns the linear position of point within a finite
// domain.
func rowMajorOffset(domain index.Domain, point []int64) int64 {
	var offset int64
	for i := range point {
		dim := domain.Dim(i)
		offset = offset*dim.Size() + point[i] - dim.Origin()
	}
	return offset
}
