package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CodedInternet/goecat/comms"
	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
)

const testRigYaml = `
version: 1
period: 1ms
mode: cyclic_velocity
drives:
- name: left
  position: 0
  vendor_id: 0x9a
  product_code: 0x30924
- name: right
  position: 1
  vendor_id: 0x9a
  product_code: 0x30924
io:
  name: io
  position: 2
input:
  stale_after: 0s
enable_timeout: 2s
`

const (
	TEST_ADMIN    = "admin@test.case"
	TEST_OPERATOR = "operator@test.case"
	TEST_PASSWORD = "testing123"
)

// setupTestEnv points ENV at a fresh database and a simulated rig.
func setupTestEnv(t *testing.T) {
	dir, err := os.MkdirTemp("", "goecat-main")
	if err != nil {
		t.Fatal(err)
	}

	db, err := openDb(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	ENV.DB = db

	for _, email := range []string{TEST_ADMIN, TEST_OPERATOR} {
		user := &User{Email: email, Name: email, Admin: email == TEST_ADMIN}
		if err := user.SetPassword([]byte(TEST_PASSWORD)); err != nil {
			t.Fatal(err)
		}
		if err := db.Save(user); err != nil {
			t.Fatal(err)
		}
	}

	config, err := onboard.ParseRigConfig([]byte(testRigYaml))
	if err != nil {
		t.Fatal(err)
	}
	master := fieldbus.NewSimulatedMaster(config.Identities(), config.IO)
	ENV.Rig, err = onboard.NewRig(config, master, db, ENV.Log)
	if err != nil {
		t.Fatal(err)
	}

	ENV.Supervisor = comms.NewSupervisor(ENV.Rig, ENV.Log)
	ENV.Conductor = &comms.Conductor{Device: ENV.Rig, Supervisor: ENV.Supervisor}

	t.Cleanup(func() {
		ENV.Rig.Close()
		db.Close()
		os.RemoveAll(dir)
	})
}
