package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List tracked document types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := apiClient.Types.List(cmd.Context())
			if err != nil {
				return err
			}
			if flagFmt == "json" {
				return formatJSON(types)
			}
			for _, t := range types {
				formatQuiet(t)
			}
			return nil
		},
	}
}

func newSpecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spec <type>",
		Short: "Show the resolved tracking spec of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := apiClient.Types.Tracking(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagFmt != "table" {
				return output(spec, spec.Scope)
			}

			embeds := make([]string, 0, len(spec.EmbedsOne)+len(spec.EmbedsMany))
			for rel := range spec.EmbedsOne {
				embeds = append(embeds, rel+" (one)")
			}
			for rel := range spec.EmbedsMany {
				embeds = append(embeds, rel+" (many)")
			}
			sort.Strings(embeds)

			formatTable([]string{"SETTING", "VALUE"}, [][]string{
				{"type", spec.Type},
				{"scope", spec.Scope},
				{"fields", strings.Join(spec.Fields, ",")},
				{"dynamic", strings.Join(spec.DynamicFields, ",")},
				{"embeds", strings.Join(embeds, ",")},
				{"except", strings.Join(spec.Except, ",")},
				{"modifier_field", spec.ModifierField},
				{"version_field", spec.VersionField},
				{"modifier_required", cell(spec.ModifierRequired)},
				{"track_create", cell(spec.TrackCreate)},
				{"track_update", cell(spec.TrackUpdate)},
				{"track_destroy", cell(spec.TrackDestroy)},
			})
			return nil
		},
	}
}
