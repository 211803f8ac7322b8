package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mhismail3/tron-sub003/internal/contextmgr"
	"github.com/mhismail3/tron-sub003/internal/tokens"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models and their pricing/context limits",
	Long: `List every model id this build has exact pricing and context-limit
data for, per the exact-id/pattern/default resolution rule the Token
Normalizer and Context Manager both apply.`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include cache and long-context pricing multipliers")
}

func runModels(cmd *cobra.Command, args []string) error {
	ids := tokens.KnownModelIDs()
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if modelsVerbose {
		fmt.Fprintln(w, "MODEL\tCONTEXT\tINPUT/1M\tOUTPUT/1M\tCACHE WRITE\tCACHE READ\tLONG-CTX IN\tLONG-CTX OUT\t")
	} else {
		fmt.Fprintln(w, "MODEL\tCONTEXT\tINPUT/1M\tOUTPUT/1M\t")
	}

	for _, id := range ids {
		price := tokens.LookupPricing(id)
		limit := contextmgr.LookupContextLimit(id)

		if modelsVerbose {
			fmt.Fprintf(w, "%s\t%d\t$%.2f\t$%.2f\t%.2fx\t%.2fx\t%.2fx\t%.2fx\t\n",
				id, limit, price.InputPerMillion, price.OutputPerMillion,
				price.CacheWriteMultiplier, price.CacheReadMultiplier,
				price.LongContextInputMultiplier, price.LongContextOutputMultiplier)
		} else {
			fmt.Fprintf(w, "%s\t%d\t$%.2f\t$%.2f\t\n",
				id, limit, price.InputPerMillion, price.OutputPerMillion)
		}
	}

	return nil
}
