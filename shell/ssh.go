// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"fmt"

	"github.com/gliderlabs/ssh"
)

// sshdCmd serves a fresh diagnostic session, sharing this session's
// Config/Services/Stager, to every SSH connection accepted on addr. It
// requires networking to already be up (see netCmd); ssh.ListenAndServe
// dials into net.Listen, which only works once net.SocketFunc has been
// hooked to a live network interface.
func sshdCmd(iface *Interface, arg []string) (string, error) {
	addr := arg[0]

	handler := func(s ssh.Session) {
		session := &Interface{
			Banner:     iface.Banner,
			Log:        iface.Log,
			ReadWriter: s,
			VT100:      true,
			Config:     iface.Config,
			Services:   iface.Services,
			Stager:     iface.Stager,
		}

		session.Start()
	}

	go func() {
		if err := ssh.ListenAndServe(addr, handler); err != nil {
			fmt.Fprintf(iface.ReadWriter, "sshd on %s exited, %v\n", addr, err)
		}
	}()

	return fmt.Sprintf("sshd listening on %s", addr), nil
}
