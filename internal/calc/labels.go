package calc

import (
	"log"
	"sync"

	"github.com/gonum/matrix/mat64"
)

func labelMean(timeSeriesMat *mat64.Dense, outputMat *mat64.Dense, members [][]int, order <-chan int, wg *sync.WaitGroup) {
	_, frames := timeSeriesMat.Dims()

	for {
		region, ok := <-order
		if ok {
			rows := members[region]
			if len(rows) > 0 {
				div := float64(len(rows))
				for t := 0; t < frames; t++ {
					var acc float64
					for _, r := range rows {
						acc += timeSeriesMat.At(r, t)
					}
					outputMat.Set(t, region, acc/div)
				}
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}

// LabelMeans averages voxel time series (rows of timeSeriesMat) per region.
// voxelLabels holds the label of every row and regions the labels to report, in column order.
// The result is frames by regions; regions without voxels stay zero.
func (p *PipeLine) LabelMeans(timeSeriesMat *mat64.Dense, voxelLabels []int, regions []int) *mat64.Dense {
	rows, frames := timeSeriesMat.Dims()
	if rows != len(voxelLabels) {
		log.Fatalf("[ERROR] LabelMeans: %d voxel rows but %d voxel labels\n", rows, len(voxelLabels))
	}

	column := make(map[int]int, len(regions))
	for i, label := range regions {
		column[label] = i
	}

	members := make([][]int, len(regions))
	for r, label := range voxelLabels {
		if c, ok := column[label]; ok {
			members[c] = append(members[c], r)
		}
	}

	outputMat := mat64.NewDense(frames, len(regions), nil)

	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(len(regions))

	for i := 0; i < p.numPoper; i++ {
		go labelMean(timeSeriesMat, outputMat, members, order, &wg)
	}

	for i := 0; i < len(regions); i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	return outputMat
}
