// Package csq parses the free-text, BCSQ-style consequence annotation
// string carried in a phased VCF's INFO field into typed
// mutation.Mutation values.
//
// The wire grammar: the INFO value is a ","-separated list, one
// group per ALT allele in VCF order; each group is a "+"-separated list of
// individual annotation tuples (compound annotations on a single allele,
// e.g. adjacent-codon MNV effects); each tuple is a 7-field "|"-separated
// record: kind(s)|gene|transcript|biotype|strand|aa_change|dna_change.
// The DNA-change field and strand are not consumed by this core.
package csq

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ikmb/vcf2prot/internal/mutation"
)

// Supported consequence kinds. Any kind string not present here
// yields no Mutation — a counted, logged AnnotationSkipped, not a failure.
var supportedKinds = map[string]bool{
	"missense_variant":         true,
	"inframe_insertion":        true,
	"inframe_deletion":         true,
	"protein_altering_variant": true,
	"stop_gained":              true,
	"stop_lost":                true,
	"start_lost":               true,
	"frameshift_variant":       true,
	"synonymous_variant":       true,
}

// Result is one parsed (or skipped) annotation tuple.
type Result struct {
	Mutation mutation.Mutation
	Skipped  bool
	Reason   string // populated when Skipped
}

// ParseField parses the full BCSQ-style INFO value for one VCF record.
// The returned slice is indexed by ALT allele order: ParseField(...)[i]
// holds every annotation tuple contributed by alt allele i (possibly
// several, for compound "+"-joined entries, possibly across more than one
// transcript). An empty or "." field yields nil.
func ParseField(raw string) [][]Result {
	if raw == "" || raw == "." {
		return nil
	}
	altGroups := strings.Split(raw, ",")
	out := make([][]Result, len(altGroups))
	for i, group := range altGroups {
		// A "+" standing alone as a field ("|+|", the strand) is field
		// content, not a tuple separator.
		start := 0
		for j := 0; j <= len(group); j++ {
			if j < len(group) && (group[j] != '+' || (j > 0 && group[j-1] == '|' && j+1 < len(group) && group[j+1] == '|')) {
				continue
			}
			out[i] = append(out[i], parseTuple(group[start:j]))
			start = j + 1
		}
	}
	return out
}

// parseTuple parses one kind|gene|transcript|biotype|strand|aa_change|dna_change
// record. A record with fewer than 7 fields is accepted only for the
// special "start_lost" case, where the upstream caller sometimes omits the
// amino-acid-change field entirely; the synthetic "1M>1*" descriptor is
// substituted.
func parseTuple(tuple string) Result {
	fields := strings.Split(tuple, "|")

	var kindField, transcriptID, biotype, aaField string
	switch len(fields) {
	case 7:
		kindField, transcriptID, biotype, aaField = fields[0], fields[2], fields[3], fields[5]
	default:
		if len(fields) > 0 && fields[0] == "start_lost" && len(fields) >= 3 {
			kindField, transcriptID, biotype, aaField = fields[0], fields[2], "protein_coding", "1M>1*"
		} else {
			return Result{Skipped: true, Reason: fmt.Sprintf("malformed annotation: expected 7 fields, got %d: %q", len(fields), tuple)}
		}
	}

	if biotype != "protein_coding" {
		return Result{Skipped: true, Reason: fmt.Sprintf("non-coding transcript biotype %q", biotype)}
	}

	kind, ok := matchSupportedKind(kindField)
	if !ok {
		return Result{Skipped: true, Reason: fmt.Sprintf("unsupported consequence kind %q", kindField)}
	}

	m, err := parseAminoAcidChange(transcriptID, kind, aaField)
	if err != nil {
		return Result{Skipped: true, Reason: err.Error()}
	}
	return Result{Mutation: m}
}

// matchSupportedKind splits a possibly compound kind field ("&"/"+"
// joined) and returns the first token present in the supported set.
func matchSupportedKind(kindField string) (string, bool) {
	for _, tok := range strings.FieldsFunc(kindField, func(r rune) bool { return r == '&' || r == '+' }) {
		if supportedKinds[tok] {
			return tok, true
		}
	}
	return "", false
}

// parseAminoAcidChange parses the "POS REF ('>' ALT)?" descriptor and
// builds the typed Mutation. The Mutation's Kind is chosen from the shape
// of the parsed ref/alt runs (empty ref => insertion, empty alt =>
// deletion, single/single => missense, otherwise => delins) rather than
// solely from the wire kind string: the wire grammar always encodes the
// literal reference/alternate protein runs at protein_pos, and using that
// shape directly (instead of stripping a shared flanking anchor residue
// down to a "minimal" representation) keeps protein_pos stable across
// annotations that should conflict when they share a position — stripping
// would shift an insertion's anchor-adjacent position away from a
// co-located missense/deletion call at the same site and silently hide a
// real Multi-annotation conflict.
func parseAminoAcidChange(transcriptID, wireKind, field string) (mutation.Mutation, error) {
	if wireKind == "start_lost" {
		pos, _, err := parseSide(strings.SplitN(field, ">", 2)[0])
		if err != nil {
			return mutation.Mutation{}, fmt.Errorf("start_lost position: %w", err)
		}
		if pos < 0 {
			// Position is irrelevant for a start loss; the transcript is
			// dropped whole.
			pos = 0
		}
		return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.StartLost, Pos: pos}, nil
	}

	parts := strings.SplitN(field, ">", 2)
	if len(parts) != 2 {
		return mutation.Mutation{}, fmt.Errorf("malformed amino-acid change %q: expected POSref>ALT", field)
	}

	pos, ref, err := parseSide(parts[0])
	if err != nil {
		return mutation.Mutation{}, fmt.Errorf("reference side of %q: %w", field, err)
	}
	if pos < 0 {
		return mutation.Mutation{}, fmt.Errorf("reference side of %q has no position digits", field)
	}
	_, alt, err := parseSide(parts[1])
	if err != nil {
		return mutation.Mutation{}, fmt.Errorf("alternate side of %q: %w", field, err)
	}

	switch wireKind {
	case "stop_gained":
		return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.StopGained, Pos: pos, RefLen: max(1, len(ref))}, nil
	case "stop_lost":
		return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.StopLost, Pos: pos, RefLen: max(1, len(ref)), Inserted: alt}, nil
	case "frameshift_variant":
		return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.FrameShift, Pos: pos, RefLen: max(1, len(ref)), NewTail: alt}, nil
	case "synonymous_variant":
		return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.Synonymous, Pos: pos, RefLen: max(1, len(ref))}, nil
	default: // missense_variant, inframe_insertion, inframe_deletion, protein_altering_variant
		if ref == "*" {
			ref = ""
		}
		if alt == "*" {
			alt = ""
		}
		switch {
		case len(ref) == 0 && len(alt) == 0:
			return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.Synonymous, Pos: pos, RefLen: 1}, nil
		case len(ref) == 0:
			return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.InframeInsertion, Pos: pos, Inserted: alt}, nil
		case len(alt) == 0:
			return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.InframeDeletion, Pos: pos, RefLen: len(ref)}, nil
		case len(ref) == 1 && len(alt) == 1:
			return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.Missense, Pos: pos, RefLen: 1, AltAA: alt[0]}, nil
		default:
			return mutation.Mutation{TranscriptID: transcriptID, Kind: mutation.InframeDelins, Pos: pos, RefLen: len(ref), Inserted: alt}, nil
		}
	}
}

// parseSide parses one "POSletters" half of a "POSref>ALT" descriptor,
// returning the 0-based protein position and the letter run ("*" for a
// bare stop marker with no amino-acid letters). The position prefix is
// optional: the ALT side of the grammar usually carries letters only,
// though some callers repeat the position there too. A side with no
// digits returns pos -1; the caller decides whether that is legal.
func parseSide(s string) (pos int, letters string, err error) {
	if strings.Contains(s, "-") {
		return 0, "", fmt.Errorf("%q contains a '-', not a valid amino-acid position", s)
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	letters = s[i:]
	if letters == "" {
		letters = "*"
	}
	if i == 0 {
		return -1, letters, nil
	}
	pos1, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, "", fmt.Errorf("parsing position in %q: %w", s, err)
	}
	return pos1 - 1, letters, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
