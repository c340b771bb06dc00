package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/dnnconv/internal/tensor"
)

// Fill initializes the data of b as described by p.
//
// Fan sizes are taken from the blob shape the Caffe way:
// fan_in = count / num and fan_out = count / channels.
//
// Supported filler types:
//   - constant: every value is p.Value
//   - uniform: U(p.Min, p.Max)
//   - gaussian: N(p.Mean, p.Std)
//   - xavier: U(-sqrt(3/n), sqrt(3/n)), n chosen by p.VarianceNorm
//   - msra: N(0, sqrt(2/n)), n chosen by p.VarianceNorm
func Fill(b *tensor.Blob, p FillerParameter, rng *rand.Rand) error {
	data, err := b.MutableCPUData()
	if err != nil {
		return err
	}

	switch p.Type {
	case "", "constant":
		for i := range data {
			data[i] = p.Value
		}
	case "uniform":
		if p.Max < p.Min {
			return fmt.Errorf("%w: uniform filler max %g < min %g", ErrInvalidParam, p.Max, p.Min)
		}
		uniform(data, float64(p.Min), float64(p.Max), rng)
	case "gaussian":
		if p.Std <= 0 {
			return fmt.Errorf("%w: gaussian filler std %g must be positive", ErrInvalidParam, p.Std)
		}
		gaussian(data, float64(p.Mean), float64(p.Std), rng)
	case "xavier":
		n, err := fan(b, p.VarianceNorm)
		if err != nil {
			return err
		}
		scale := math.Sqrt(3 / n)
		uniform(data, -scale, scale, rng)
	case "msra":
		n, err := fan(b, p.VarianceNorm)
		if err != nil {
			return err
		}
		gaussian(data, 0, math.Sqrt(2/n), rng)
	default:
		return fmt.Errorf("%w: unknown filler type %q", ErrInvalidParam, p.Type)
	}
	return nil
}

func fan(b *tensor.Blob, norm VarianceNorm) (float64, error) {
	count := b.Count()
	in := float64(count / b.Num())
	out := float64(count / b.Channels())
	switch norm {
	case FanIn:
		return in, nil
	case FanOut:
		return out, nil
	case Average:
		return (in + out) / 2, nil
	default:
		return 0, fmt.Errorf("%w: unknown variance norm %d", ErrInvalidParam, norm)
	}
}

func uniform(data []float32, lo, hi float64, rng *rand.Rand) {
	for i := range data {
		//nolint:gosec // Weight initialization, not security-critical.
		data[i] = float32(lo + rng.Float64()*(hi-lo))
	}
}

func gaussian(data []float32, mean, std float64, rng *rand.Rand) {
	for i := range data {
		data[i] = float32(mean + rng.NormFloat64()*std)
	}
}
