// Package main provides the vcf2prot command-line tool: it applies the
// phased, consequence-annotated variants of every sample in a VCF to a
// reference proteome and writes one personalized protein sequence per
// affected (patient, haplotype, transcript).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ikmb/vcf2prot/internal/exec"
	"github.com/ikmb/vcf2prot/internal/fastaout"
	"github.com/ikmb/vcf2prot/internal/logging"
	"github.com/ikmb/vcf2prot/internal/pipeline"
	"github.com/ikmb/vcf2prot/internal/reference"
	"github.com/ikmb/vcf2prot/internal/slicer"
	"github.com/ikmb/vcf2prot/internal/vcfio"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// outputFileName is the single FASTA the run writes into the output
// directory; record ids already carry the patient and haplotype.
const outputFileName = "personalized_proteomes.fasta"

// statsFileName holds the -s summary tables.
const statsFileName = "run_summary.tsv"

func main() {
	os.Exit(run())
}

func run() int {
	initConfig()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

type runFlags struct {
	vcfPath   string
	fastaPath string
	outDir    string
	backend   string
	cachePath string
	verbose   bool
	stats     bool
	inspect   bool
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "vcf2prot",
		Short: "Generate personalized proteomes from a reference FASTA and a phased, consequence-annotated VCF",
		Long: `vcf2prot reads a reference proteome (FASTA) and a phased multi-sample VCF
annotated with protein-level consequences, applies each sample's variants
per haplotype, and writes one FASTA record per mutated
(patient, haplotype, transcript).`,
		Example: `  vcf2prot -f input.vcf.gz -r proteome.fasta -o results/
  vcf2prot -f input.vcf -r proteome.fasta -o results/ -g gpu -s
  vcf2prot config set backend mtp`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.vcfPath == "" || flags.fastaPath == "" || flags.outDir == "" {
				cmd.Usage()
				os.Exit(ExitUsage)
			}
			return runPipeline(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.vcfPath, "vcf_file", "f", "", "VCF file with consequence annotations for each sample")
	cmd.Flags().StringVarP(&flags.fastaPath, "fasta_ref", "r", "", "reference proteome FASTA")
	cmd.Flags().StringVarP(&flags.outDir, "output_path", "o", viper.GetString("output_path"), "directory to write results into")
	cmd.Flags().StringVarP(&flags.backend, "engine", "g", viper.GetString("backend"), "execution backend: stp, mtp or gpu")
	cmd.Flags().StringVarP(&flags.cachePath, "cache", "c", viper.GetString("cache"), "optional DuckDB reference cache (parsed FASTA is reused across runs)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVarP(&flags.stats, "stats", "s", false, "write a run summary next to the output")
	cmd.Flags().BoolVarP(&flags.inspect, "inspect", "i", false, "self-check the translated sequences after execution")

	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	viper.SetConfigFile(filepath.Join(home, ".vcf2prot.yaml"))
	viper.SetDefault("backend", "mtp")
	viper.ReadInConfig() // a missing config file is fine
}

func runPipeline(flags runFlags) error {
	logger, err := logging.New(flags.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	idx, err := loadReference(flags, logger)
	if err != nil {
		return err
	}
	logger.Info("reference loaded", zap.Int("transcripts", idx.Count()))

	backend, err := exec.New(flags.backend, logger)
	if err != nil {
		return err
	}

	r, err := vcfio.Open(flags.vcfPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(flags.outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	outFile, err := os.Create(filepath.Join(flags.outDir, outputFileName))
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()
	w := fastaout.NewWriter(outFile)
	w.SetLineWidth(viper.GetInt("wrap"))

	p := pipeline.New(idx, backend)
	p.SetLogger(logger)
	p.SetInspect(flags.inspect)

	descs, err := p.Run(r, func(rec slicer.Record) error {
		return w.WriteRecord(rec.ID, rec.Sequence)
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("run finished",
		zap.String("backend", backend.Name()),
		zap.Int("records", w.Count()))

	if flags.stats {
		statsFile, err := os.Create(filepath.Join(flags.outDir, statsFileName))
		if err != nil {
			return fmt.Errorf("create stats file: %w", err)
		}
		defer statsFile.Close()
		if err := fastaout.WriteStats(statsFile, p.Counters().Snapshot(), descs); err != nil {
			return err
		}
	}
	return nil
}

// loadReference builds the reference index, going through the DuckDB
// cache when one is configured and its fingerprint still matches the
// FASTA on disk.
func loadReference(flags runFlags, logger *zap.Logger) (*reference.Index, error) {
	if flags.cachePath == "" {
		return loadReferenceFasta(flags.fastaPath)
	}
	return loadReferenceCached(flags, logger)
}
