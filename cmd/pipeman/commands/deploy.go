package commands

import (
	"github.com/spf13/cobra"

	"github.com/wangkuntian/pipeman/cmd/pipeman/handlers"
)

// Deploy returns the command that runs the deployment pipeline.
//
// Required flags:
//
//	--arch: amd64 or arm64
//	--mode: all_in_one or multi_node
//
// Optional flags:
//
//	--file, -f: configuration file (default: /opt/pipeman/configs/config.toml, then ./configs/config.toml)
//	--hosts: comma separated hosts; skips image, installer and fleet stages
//	--quiet, -q: log to the log file only
//	--resume: state file of an earlier run
func Deploy() *cobra.Command {
	var opts handlers.DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, provision and deploy uStack",
		Long: `Run the deployment pipeline.

Without --hosts the pipeline builds (or reuses) the installer image, writes
uSwift onto a volume, snapshots it and boots the hosts from that snapshot.
With --hosts it only configures and deploys the given machines.

Examples:
  # Fresh single node deployment
  pipeman deploy --arch amd64 --mode all_in_one

  # Three node cluster on existing hosts
  pipeman deploy --arch arm64 --mode multi_node --hosts 10.0.0.11,10.0.0.12,10.0.0.13

  # Pick up where a failed run stopped
  pipeman deploy --arch amd64 --mode all_in_one --resume /opt/pipeman/state/2026-10-17-09-30.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Arch, "arch", "", "Host architecture (amd64, arm64)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "Deployment mode (all_in_one, multi_node)")
	cmd.Flags().StringVarP(&opts.ConfigFile, "file", "f", "", "Path to configuration file")
	cmd.Flags().StringSliceVar(&opts.Hosts, "hosts", nil, "Existing hosts to deploy onto")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Do not log to stdout")
	cmd.Flags().StringVar(&opts.ResumeFile, "resume", "", "State file of an earlier run")
	_ = cmd.MarkFlagRequired("arch")
	_ = cmd.MarkFlagRequired("mode")

	return cmd
}
