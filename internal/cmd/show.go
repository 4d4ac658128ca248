package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gravitrone/kgeditor/internal/store"
)

// ShowCmd returns the `kgeditor show <id>...` command. Ids are fetched
// through the batched instance queue, so many ids cost one request.
func ShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>... | show -",
		Short: "Print instances by id (- reads ids from stdin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if len(args) == 1 && args[0] == "-" {
				ids = readIDs(cmd.InOrStdin())
			}
			if len(ids) == 0 {
				return fmt.Errorf("no instance ids given")
			}

			_, cancel, cfg, client, err := session(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			st := store.New(client, store.Options{
				Stage:          cfg.Stage,
				Threshold:      cfg.Queue.Threshold,
				Delay:          cfg.Queue.Delay,
				RequestTimeout: commandTimeout,
			})
			defer st.Close()
			for _, id := range ids {
				st.Fetch(id, false)
			}
			st.Wait()

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st, ids)
			}
			failed := 0
			for i, id := range ids {
				if i > 0 {
					fmt.Fprintln(out)
				}
				inst, _ := st.Get(id)
				if inst.Data == nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", id, fetchErr(inst))
					continue
				}
				printInstance(out, st, inst)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d instances could not be loaded", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print field values as JSON")
	return cmd
}

func readIDs(r io.Reader) []string {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ids = append(ids, strings.Fields(sc.Text())...)
	}
	return ids
}

func fetchErr(inst store.Instance) error {
	if inst.Err != nil {
		return inst.Err
	}
	return fmt.Errorf("not loaded")
}

func printInstance(out io.Writer, st *store.Store, inst store.Instance) {
	typ := inst.PrimaryType()
	fmt.Fprintf(out, "%s  [%s]\n", inst.Name(), cmpOr(typ.Label, typ.Name, "-"))
	fmt.Fprintf(out, "  id:        %s\n", inst.ID)
	fmt.Fprintf(out, "  workspace: %s\n", inst.Workspace())
	for _, key := range inst.Data.FieldKeys() {
		field := inst.Data.Fields[key]
		value := inst.Values[key]
		var text string
		if field.IsLink {
			var names []string
			for _, id := range store.RefIDs(value) {
				child, _ := st.Get(id)
				names = append(names, child.Name())
			}
			text = strings.Join(names, ", ")
		} else if value != nil {
			text = fmt.Sprint(value)
		}
		fmt.Fprintf(out, "  %s: %s\n", cmpOr(field.Label, key), text)
	}
}

func writeJSON(out io.Writer, st *store.Store, ids []string) error {
	result := make(map[string]any, len(ids))
	for _, id := range ids {
		inst, _ := st.Get(id)
		if inst.Data == nil {
			result[id] = map[string]any{"error": fetchErr(inst).Error()}
			continue
		}
		result[id] = inst.Values
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
