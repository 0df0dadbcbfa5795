package audio

// TrimPadding is the number of samples kept on each side of the detected
// non-silent region.
const TrimPadding = 150

// TrimBounds locates the region of samples to keep.
//
// The forward and backward scans run independently: a forward scan that finds
// nothing leaves start at 0 and a backward scan that finds nothing leaves end
// at len-1. Both are then widened by TrimPadding and clamped to the buffer.
// trimmed reports whether start < end, i.e. whether samples[start:end+1] is
// the result; otherwise the caller keeps the buffer untouched.
func TrimBounds(samples []float32, threshold float32) (start, end int, trimmed bool) {
	n := len(samples)
	if n == 0 {
		return 0, -1, false
	}

	for i := 0; i < n; i++ {
		if abs32(samples[i]) > threshold {
			start = i
			break
		}
	}
	start = max(0, start-TrimPadding)

	end = n - 1
	for i := n - 1; i >= 0; i-- {
		if abs32(samples[i]) > threshold {
			end = i
			break
		}
	}
	end = min(n-1, end+TrimPadding)

	return start, end, start < end
}

// Trim removes leading and trailing silence from samples.
//
// A sample is silent when its absolute value is at or below threshold. The
// kept region is padded by TrimPadding samples on both sides. A silent buffer
// keeps every sample because the scans default to its ends. Only buffers of
// at most one sample fail to form a region; they are returned unchanged.
// The returned buffer always carries format as given and never aliases the
// input slice.
func Trim(samples []float32, format Format, threshold float32) Buffer {
	start, end, ok := TrimBounds(samples, threshold)
	if !ok {
		out := make([]float32, len(samples))
		copy(out, samples)
		return Buffer{Format: format, Samples: out}
	}

	out := make([]float32, end-start+1)
	copy(out, samples[start:end+1])
	return Buffer{Format: format, Samples: out}
}

// TrimBuffer is Trim applied to a Buffer.
func TrimBuffer(buf Buffer, threshold float32) Buffer {
	return Trim(buf.Samples, buf.Format, threshold)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
