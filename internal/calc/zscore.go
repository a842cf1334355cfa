package calc

import (
	"log"
	"math"

	"github.com/gonum/matrix/mat64"
)

func rowStat(row []float64) statistic {
	var acc, accSqr float64
	for _, value := range row {
		acc += value
		accSqr += value * value
	}

	n := float64(len(row))
	avg := acc / n
	return statistic{
		avg: avg,
		std: math.Sqrt(math.Max(0, accSqr/n-avg*avg)),
	}
}

// ZScoring does z-scoring on each voxel time series (rows).
// Constant series become zero. outputMat may be inputMat.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		log.Fatalf("[ERROR] ZScoring: Input is %d by %d but output is %d by %d\n", inputRows, inputCols, outputRows, outputCols)
	}

	p.dispatch(inputRows, func(index int) {
		stat := rowStat(inputMat.RawRowView(index))
		out := outputMat.RawRowView(index)
		for t, value := range inputMat.RawRowView(index) {
			if stat.std > 1e-12 {
				out[t] = (value - stat.avg) / stat.std
			} else {
				out[t] = 0
			}
		}
	})

	return
}
