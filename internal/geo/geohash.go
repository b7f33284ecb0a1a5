package geo

import (
	"fmt"
	"strings"
)

// Precision is the fixed geohash length used for every entity location.
// 8 characters resolve to roughly a 38m x 19m cell.
const Precision = 8

const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

var alphabetIndex = func() map[byte]int {
	m := make(map[byte]int, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = i
	}
	return m
}()

// Encode returns the geohash cell of length precision containing the
// coordinate. Bits alternate longitude-first, five bits per character.
func Encode(lat, lon float64, precision int) string {
	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	ch, bits := 0, 0
	even := true
	for sb.Len() < precision {
		if even {
			mid := (lonLo + lonHi) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				lonLo = mid
			} else {
				ch <<= 1
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch <<= 1
				latHi = mid
			}
		}
		even = !even
		bits++
		if bits == 5 {
			sb.WriteByte(alphabet[ch])
			ch, bits = 0, 0
		}
	}

	return sb.String()
}

// Decode returns the center of the cell plus the half-width of the cell in
// each dimension (the precision of the approximation).
func Decode(hash string) (lat, lon, latErr, lonErr float64, err error) {
	if hash == "" {
		return 0, 0, 0, 0, fmt.Errorf("empty geohash")
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	even := true
	for i := 0; i < len(hash); i++ {
		ch, ok := alphabetIndex[hash[i]]
		if !ok {
			return 0, 0, 0, 0, fmt.Errorf("invalid geohash character %q at position %d", hash[i], i)
		}
		for bit := 4; bit >= 0; bit-- {
			set := ch>>bit&1 == 1
			if even {
				mid := (lonLo + lonHi) / 2
				if set {
					lonLo = mid
				} else {
					lonHi = mid
				}
			} else {
				mid := (latLo + latHi) / 2
				if set {
					latLo = mid
				} else {
					latHi = mid
				}
			}
			even = !even
		}
	}

	lat = (latLo + latHi) / 2
	lon = (lonLo + lonHi) / 2
	return lat, lon, (latHi - latLo) / 2, (lonHi - lonLo) / 2, nil
}

// Valid reports whether hash is a well-formed cell at the fixed precision.
func Valid(hash string) bool {
	if len(hash) != Precision {
		return false
	}
	for i := 0; i < len(hash); i++ {
		if _, ok := alphabetIndex[hash[i]]; !ok {
			return false
		}
	}
	return true
}

// SharedPrefix returns the number of leading cells two geohashes have in
// common. Longer shared prefixes imply spatial proximity.
func SharedPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
