// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"fmt"
	"net"
	"regexp"

	gnet "github.com/usbarmory/go-net"
)

// Resolver is the default name server used once networking is started.
var Resolver = "8.8.8.8:53"

func init() {
	Add(Cmd{
		Name:    "net",
		Args:    2,
		Pattern: regexp.MustCompile(`^net (\S+) (\S+)$`),
		Syntax:  "<ip> <gateway>",
		Help:    "start UEFI networking",
		Fn:      netCmd,
	})

	Add(Cmd{
		Name:    "dns",
		Args:    1,
		Pattern: regexp.MustCompile(`^dns (.*)`),
		Syntax:  "<host>",
		Help:    "resolve domain",
		Fn:      dnsCmd,
	})

	Add(Cmd{
		Name:    "sshd",
		Args:    1,
		Pattern: regexp.MustCompile(`^sshd (\S+)$`),
		Syntax:  "<addr:port>",
		Help:    "serve this diagnostic console over SSH",
		Fn:      sshdCmd,
	})

	net.SetDefaultNS([]string{Resolver})
}

// netCmd brings up the EFI Simple Network Protocol interface and hooks it
// into the Go runtime's net package, so that both dnsCmd and sshdCmd (and
// anything the booted kernel's cmdline references) can use net.Dial/Listen
// as usual.
func netCmd(iface *Interface, arg []string) (res string, err error) {
	if iface.Services == nil {
		return "", fmt.Errorf("shell: no firmware services attached")
	}

	nic, err := iface.Services.Boot.GetNetwork()

	if err != nil {
		return "", fmt.Errorf("could not locate network protocol, %v", err)
	}

	if err = nic.Start(); err != nil {
		return "", fmt.Errorf("could not start interface, %v", err)
	}

	if err = nic.Initialize(); err != nil {
		return "", fmt.Errorf("could not initialize interface, %v", err)
	}

	gi := &gnet.Interface{}

	if err := gi.Init(nic, arg[0], "", arg[1]); err != nil {
		return "", fmt.Errorf("could not initialize networking, %v", err)
	}

	gi.EnableICMP()
	go gi.NIC.Start()

	net.SocketFunc = gi.Socket

	return "network initialized", nil
}

func dnsCmd(_ *Interface, arg []string) (string, error) {
	cname, err := net.LookupHost(arg[0])

	if err != nil {
		return "", fmt.Errorf("query error: %v", err)
	}

	return fmt.Sprintf("%+v", cname), nil
}
