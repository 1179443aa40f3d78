package tuning

import (
	"regexp"
	"strconv"
)

// Write payloads are a pair of decimal fields, optionally signed, separated
// by blanks. Surrounding whitespace (the newline echo appends) is ignored.
var (
	percentPairRe = regexp.MustCompile(`^\s*([+-]?[0-9]+)%[ \t]+([+-]?[0-9]+)%\s*$`)
	intPairRe     = regexp.MustCompile(`^\s*([+-]?[0-9]+)[ \t]+([+-]?[0-9]+)\s*$`)
)

type payloadKind int

const (
	payloadInvalid payloadKind = iota
	payloadPercentPair
	payloadIntPair
)

// parsePair matches buf against re and returns both fields. Fields must fit
// in 32 bits.
func parsePair(re *regexp.Regexp, buf string) (a, b int64, ok bool) {
	m := re.FindStringSubmatch(buf)
	if m == nil {
		return 0, 0, false
	}
	a, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	b, err = strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// parseControl classifies a gpu_control payload. The percentage form needs a
// marker on both fields; a payload mixing the forms matches neither.
func parseControl(buf string) (payloadKind, int64, int64) {
	if a, b, ok := parsePair(percentPairRe, buf); ok {
		return payloadPercentPair, a, b
	}
	if a, b, ok := parsePair(intPairRe, buf); ok {
		return payloadIntPair, a, b
	}
	return payloadInvalid, 0, 0
}
