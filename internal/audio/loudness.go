package audio

import "math"

// ReferenceRMSDBFS is the RMS level a track gain is computed against.
const ReferenceRMSDBFS = -18.0

// Loudness summarises levels of a finished mix.
type Loudness struct {
	PeakDBFS    float64
	RMSDBFS     float64
	TrackGainDB float64
}

// Measure computes peak and RMS levels and the gain that would bring the RMS
// level to ReferenceRMSDBFS. Silent buffers report -Inf levels and zero gain.
func Measure(b Buffer) Loudness {
	var sum float64
	for _, s := range b.Samples {
		sum += float64(s) * float64(s)
	}
	l := Loudness{PeakDBFS: DBFS(float64(Peak(b.Samples))), RMSDBFS: math.Inf(-1)}
	if len(b.Samples) > 0 && sum > 0 {
		l.RMSDBFS = DBFS(math.Sqrt(sum / float64(len(b.Samples))))
		l.TrackGainDB = ReferenceRMSDBFS - l.RMSDBFS
	}

	return l
}
