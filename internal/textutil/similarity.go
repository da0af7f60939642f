package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// SameText reports whether a and b are equal after normalization, or share
// enough vocabulary (cosine >= threshold) to be treated as the same line.
func SameText(a, b string, threshold float64) bool {
	if Normalize(a) == Normalize(b) {
		return true
	}
	if threshold <= 0 || threshold > 1 {
		return false
	}
	return CosineSimilarity(NewFingerprint(a), NewFingerprint(b)) >= threshold
}
