package main

import (
	"fmt"
	"os"
	"text/tabwriter"
)

type Check struct {
	Identity bool `option:"" name:"identity" help:"Also load the identity key file" default:"true" negatable:""`
}

func (r *Check) Run(kongCtx *CLIContext) error {
	config, err := kongCtx.Clients.Load()
	if err != nil {
		return err
	}
	group, err := config.GroupContext()
	if err != nil {
		return err
	}
	if r.Identity {
		identity, err := config.Keypair()
		if err != nil {
			return err
		}
		fmt.Printf("identity\t%s\n", identity.PublicKey())
	}
	fmt.Printf("group\t%s (%s)\nprogram\t%s\ncache\t%s\n", group.Name, group.GroupId, group.ProgramId, group.CacheId)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tPUBKEY\tEVENT QUEUE")
	for _, m := range group.Markets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.Market, m.EventQueue)
	}
	err = w.Flush()
	if err != nil {
		return err
	}
	for i, u := range config.BroadcastUrls() {
		fmt.Printf("broadcast[%d]\t%s\n", i, u)
	}
	return nil
}
