package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildInfo is what `observ version` reports. Linker-set values win over
// the module and VCS data embedded by the Go toolchain.
type buildInfo struct {
	Module    string
	Version   string
	Commit    string
	Date      string
	Modified  bool
	GoVersion string
	Deps      []string
}

func readBuildInfo() buildInfo {
	b := buildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		b.merge(info)
	}
	return b
}

func (b *buildInfo) merge(info *debug.BuildInfo) {
	b.Module = info.Main.Path
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	if info.GoVersion != "" {
		b.GoVersion = info.GoVersion
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "none" {
				b.Commit = s.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	b.Deps = b.Deps[:0]
	for _, d := range info.Deps {
		if d.Replace != nil {
			d = d.Replace
		}
		b.Deps = append(b.Deps, d.Path+" "+d.Version)
	}
}

func (b buildInfo) write(w io.Writer, deps bool) {
	rev := b.Commit
	if b.Modified {
		rev += " (modified)"
	}
	fmt.Fprintln(w)
	if b.Module != "" {
		fmt.Fprintf(w, "  Module:     %s\n", b.Module)
	}
	fmt.Fprintf(w, "  Version:    %s\n", b.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", rev)
	fmt.Fprintf(w, "  Built:      %s\n", b.Date)
	fmt.Fprintf(w, "  Go version: %s\n", b.GoVersion)
	fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if deps && len(b.Deps) > 0 {
		fmt.Fprintln(w, "  Deps:")
		for _, d := range b.Deps {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
	fmt.Fprintln(w)
}

func versionCmd() *cobra.Command {
	var short, deps bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the module version, VCS revision and Go toolchain the observ CLI was built with.`,
		Run: func(cmd *cobra.Command, args []string) {
			b := readBuildInfo()
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), b.Version)
				return
			}
			b.write(cmd.OutOrStdout(), deps)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	cmd.Flags().BoolVar(&deps, "deps", false, "Also list the module dependencies")

	return cmd
}
