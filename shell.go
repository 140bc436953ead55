package main

import (
	"encoding/json"
	"strconv"

	"github.com/CodedInternet/goecat/comms"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/abiosoft/ishell"
)

func onOffArg(c *ishell.Context) (on bool, ok bool) {
	if len(c.Args) != 1 {
		return false, false
	}
	switch c.Args[0] {
	case "on", "1", "true":
		return true, true
	case "off", "0", "false":
		return false, true
	}
	return false, false
}

// newShell builds the local operator shell.
func newShell() *ishell.Shell {
	shell := ishell.New()
	shell.Println("Rig operator shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			user := &User{
				Email: email,
				Name:  email,
				Admin: true,
			}
			if err := user.SetPassword([]byte(password)); err != nil {
				c.Err(err)
				return
			}
			if err := ENV.DB.Save(user); err != nil {
				c.Err(err)
				return
			}

			c.Println("Superuser created")
		},
	})

	//---
	// Lifecycle
	//---
	for _, t := range []lifecycle.Transition{
		lifecycle.Configure, lifecycle.Activate, lifecycle.Deactivate, lifecycle.Cleanup, lifecycle.Shutdown,
	} {
		t := t
		shell.AddCmd(&ishell.Cmd{
			Name: string(t),
			Help: "request the " + string(t) + " transition",
			Func: func(c *ishell.Context) {
				if err := ENV.Rig.Trigger(t); err != nil {
					c.Err(err)
				}
				c.Println("Lifecycle:", ENV.Rig.Lifecycle.State())
			},
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "print the rig status",
		Func: func(c *ishell.Context) {
			out, err := json.MarshalIndent(newStatusResponse(), "", "  ")
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(string(out))
		},
	})

	//---
	// Safety
	//---
	shell.AddCmd(&ishell.Cmd{
		Name: "estop",
		Help: "estop <on|off>",
		Func: func(c *ishell.Context) {
			on, ok := onOffArg(c)
			if !ok {
				c.Println("Usage: estop <on|off>")
				return
			}
			if on {
				err := ENV.Supervisor.Press(comms.BUTTON_EMERGENCY)
				if err != nil {
					c.Err(err)
				}
			} else if err := ENV.Supervisor.Press(comms.BUTTON_RESET); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "inhibit",
		Help: "inhibit <on|off>",
		Func: func(c *ishell.Context) {
			on, ok := onOffArg(c)
			if !ok {
				c.Println("Usage: inhibit <on|off>")
				return
			}
			ENV.Rig.SetInhibit(on)
		},
	})

	//---
	// Input
	//---
	axisNames := func([]string) []string {
		return []string{"left_x", "left_y", "right_x", "right_y"}
	}

	shell.AddCmd(&ishell.Cmd{
		Name:      "jog",
		Completer: axisNames,
		Help:      "jog <axis> <value between -1 and 1>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("Usage: jog <axis> <value>")
				return
			}
			value, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(err)
				return
			}
			err = ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "axis", Name: c.Args[0], Value: value})
			if err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "press",
		Help: "press <button> <on|off>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("Usage: press <button> <on|off>")
				return
			}
			value := 0.0
			if c.Args[1] == "on" || c.Args[1] == "1" {
				value = 1
			}
			err := ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "press", Name: c.Args[0], Value: value})
			if err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "neutral",
		Help: "release every axis and button",
		Func: func(c *ishell.Context) {
			ENV.Conductor.ProcessCommand(comms.Cmd{Cmd: "neutral"})
		},
	})

	return shell
}
