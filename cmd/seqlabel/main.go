// Command seqlabel trains, evaluates, and runs token-level IOB sequence
// taggers from the terminal. Models are pretrained-embedding BiRNN
// networks with optional character features and a CRF output layer;
// trained models are saved as bundle directories that eval, tag, and
// export load back.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var rootCmd = &cobra.Command{
	Use:   "seqlabel",
	Short: "Train, evaluate, and run IOB sequence taggers",
	Long: `seqlabel works with token-per-line IOB corpora and pretrained word
embeddings. A typical session trains a model from a YAML run
configuration, inspects its validation report, and then tags new text:

  seqlabel train --config run.yaml
  seqlabel eval --model out/ner --embedding glove.txt --corpus test.iob
  seqlabel tag --model out/ner --embedding glove.txt Obama visited Paris
  seqlabel export --model out/ner --embedding glove.txt -i in.iob -o out.iob`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Expose the klog verbosity flags (-v, -logtostderr, ...) on every
	// subcommand so training internals can be inspected without a rebuild.
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error:"), err)
		klog.Flush()
		os.Exit(1)
	}
}
