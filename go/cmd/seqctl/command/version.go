/*
Copyright 2019 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package command

import (
	"fmt"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
)

// programName is the program name reported in build information.
const programName = "seqctl"

var Version = &cobra.Command{
	Use:   "version",
	Short: "Prints the build information.",
	Long: "Prints the version, revision and Go toolchain seqctl was built with. " +
		"The same information is exported as the seqctl_build_info metric.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Print(programName))
	},
}

func init() {
	Root.AddCommand(Version)
}
