package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/rota"
)

// DefCmd manages schedule definitions
var DefCmd = &cobra.Command{
	Use:   "def",
	Short: "Manage schedule definitions",
	Long: `Manage schedule definitions.

A definitions file is YAML with a top-level "schedules" list:

  schedules:
    - id: ward-a
      tenant_id: st-olaf
      department_id: icu
      name: Ward A nurses
      params_locator: gsheet://1AbC.../Roster
      prefs_locator: gsheet://1AbC.../Preferences
      results_locator: gsheet://1AbC.../Schedule
      run_cron: "0 6 * * 1"
      time_budget_seconds: 60

"active" defaults to true.

Examples:
  rota def apply -f schedules.yaml
  rota def ls`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var defApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update definitions from a YAML file",
	RunE:  runDefApply,
}

var defListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List schedule definitions",
	RunE:    runDefList,
}

func init() {
	defApplyCmd.Flags().StringP("file", "f", "", "Definitions file")
	_ = defApplyCmd.MarkFlagRequired("file")

	DefCmd.AddCommand(defApplyCmd)
	DefCmd.AddCommand(defListCmd)
}

// definitionEntry decodes a Definition with active defaulting to true.
type definitionEntry rota.Definition

func (d *definitionEntry) UnmarshalYAML(node *yaml.Node) error {
	type plain rota.Definition
	p := plain{Active: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = definitionEntry(p)
	return nil
}

type definitionsFile struct {
	Schedules []definitionEntry `yaml:"schedules"`
}

// parseDefinitions decodes and validates every entry. Ids must be unique.
func parseDefinitions(data []byte) ([]*rota.Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid definitions file"), errors.ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(file.Schedules))
	defs := make([]*rota.Definition, 0, len(file.Schedules))
	for i := range file.Schedules {
		def := rota.Definition(file.Schedules[i])
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.ID] {
			return nil, errors.NewInvalidRequestError("schedule %s is defined twice", def.ID)
		}
		seen[def.ID] = true
		defs = append(defs, &def)
	}
	return defs, nil
}

func runDefApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	defs, err := parseDefinitions(data)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, def := range defs {
		if err := a.defs.Upsert(ctx, def); err != nil {
			return err
		}
		pterm.Success.Printfln("Applied %s", def.ID)
	}
	return nil
}

func runDefList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	defs, err := a.defs.List(ctx)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		pterm.Info.Println("No schedule definitions")
		return nil
	}
	data := pterm.TableData{{"ID", "TENANT", "NAME", "CRON", "ACTIVE", "PARAMS"}}
	for _, d := range defs {
		data = append(data, []string{d.ID, d.TenantID, d.Name, d.RunCron, boolString(d.Active), d.ParamsLocator})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
