// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"

	"github.com/pingcap/nbest-rescore/pkg/cmd/launch"
	"github.com/pingcap/nbest-rescore/pkg/cmd/util"
	"github.com/pingcap/nbest-rescore/pkg/cmd/version"
	"github.com/spf13/cobra"
)

// NewCmd creates the root command.
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore-all",
		Short: "Launch an n-best rescoring run on a batch cluster",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// AddCommandsTo adds all the sub commands to the root command.
func AddCommandsTo(cmd *cobra.Command) {
	cmd.AddCommand(launch.NewCmdLaunch())
	cmd.AddCommand(version.NewCmdVersion())
}

// Run runs the root command.
func Run() {
	cmd := NewCmd()

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	AddCommandsTo(cmd)

	util.CheckErr(cmd.Execute())
}
