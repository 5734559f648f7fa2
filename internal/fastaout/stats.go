package fastaout

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/ikmb/vcf2prot/internal/vcferr"
)

// WriteStats writes the run summary enabled with -s: the warning
// counters, then per-patient and per-transcript emitted-record counts
// as tab-separated tables. Patients keep their first-seen (header)
// order; transcripts are listed by descending record count with id as
// the tiebreak so the table itself is deterministic.
func WriteStats(w io.Writer, snap vcferr.Snapshot, descs []lowering.Descriptor) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "#counter\tvalue")
	fmt.Fprintf(bw, "records_emitted\t%d\n", snap.RecordsEmitted)
	fmt.Fprintf(bw, "transcripts_dropped\t%d\n", snap.TranscriptsDropped)
	fmt.Fprintf(bw, "annotations_skipped\t%d\n", snap.AnnotationsSkipped)
	fmt.Fprintf(bw, "bitmask_decode_errors\t%d\n", snap.BitmaskDecodeErrors)
	fmt.Fprintf(bw, "inspect_failures\t%d\n", snap.InspectFailures)

	perPatient := make(map[string]int)
	var patientOrder []string
	perTranscript := make(map[string]int)
	for _, d := range descs {
		if _, seen := perPatient[d.Patient]; !seen {
			patientOrder = append(patientOrder, d.Patient)
		}
		perPatient[d.Patient]++
		perTranscript[d.Transcript]++
	}

	fmt.Fprintln(bw, "#patient\trecords")
	for _, p := range patientOrder {
		fmt.Fprintf(bw, "%s\t%d\n", p, perPatient[p])
	}

	transcripts := make([]string, 0, len(perTranscript))
	for txp := range perTranscript {
		transcripts = append(transcripts, txp)
	}
	sort.Slice(transcripts, func(i, j int) bool {
		if perTranscript[transcripts[i]] != perTranscript[transcripts[j]] {
			return perTranscript[transcripts[i]] > perTranscript[transcripts[j]]
		}
		return transcripts[i] < transcripts[j]
	})
	fmt.Fprintln(bw, "#transcript\trecords")
	for _, txp := range transcripts {
		fmt.Fprintf(bw, "%s\t%d\n", txp, perTranscript[txp])
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write stats summary: %w", err)
	}
	return nil
}
