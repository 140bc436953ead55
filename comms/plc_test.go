package comms

import (
	"errors"
	"testing"

	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRegisters struct {
	writes   int
	address  uint16
	quantity uint16
	value    []byte
	err      error
}

func (f *fakeRegisters) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.writes++
	f.address = address
	f.quantity = quantity
	f.value = append([]byte(nil), value...)
	return []byte{byte(address >> 8), byte(address), byte(quantity >> 8), byte(quantity)}, nil
}

func TestEncodeStatus(t *testing.T) {
	Convey("Given the status of a running rig", t, func() {
		status := newMockDevice().Status()
		status.Inhibit = true
		status.Telemetry = testTelemetry()

		regs := EncodeStatus(status, SAFETY_ERROR_IN_DRIVE)

		So(regs, ShouldHaveLength, PLC_SLOT_DRIVES+2*PLC_SLOTS_PER_DRIVE)
		So(regs[PLC_SLOT_LIFECYCLE], ShouldEqual, 3)
		So(regs[PLC_SLOT_SAFETY], ShouldEqual, 2)
		So(regs[PLC_SLOT_FLAGS], ShouldEqual, PLC_FLAG_INHIBIT|PLC_FLAG_LIMIT)
		So(regs[PLC_SLOT_PHASE], ShouldEqual, 2)

		first := PLC_SLOT_DRIVES
		So(regs[first], ShouldEqual, 4)
		So(regs[first+1], ShouldEqual, 0x0627)
		second := PLC_SLOT_DRIVES + PLC_SLOTS_PER_DRIVE
		So(regs[second], ShouldEqual, 6)
		So(regs[second+2], ShouldEqual, 0x7500)
	})

	Convey("Transient lifecycle states have their own codes", t, func() {
		status := onboard.RigStatus{Lifecycle: lifecycle.Status{State: lifecycle.ErrorProcessing}}
		So(EncodeStatus(status, SAFETY_OK)[PLC_SLOT_LIFECYCLE], ShouldEqual, 15)
	})
}

func TestPLCMirror(t *testing.T) {
	Convey("Given a mirror on a fake PLC", t, func() {
		device := newMockDevice()
		plc := new(fakeRegisters)
		m := newPLCMirror(onboard.PLCConfig{Register: 100}, device, NewSupervisor(device, nil), plc, nil)

		Convey("the status block is written big-endian at the configured register", func() {
			So(m.WriteOnce(), ShouldBeNil)
			So(plc.writes, ShouldEqual, 1)
			So(plc.address, ShouldEqual, 100)
			So(plc.quantity, ShouldEqual, PLC_SLOT_DRIVES+2*PLC_SLOTS_PER_DRIVE)
			So(plc.value[:2], ShouldResemble, []byte{0, 3})

			Convey("and only rewritten when it changes", func() {
				So(m.WriteOnce(), ShouldBeNil)
				So(plc.writes, ShouldEqual, 1)

				device.SetEmergency(true)
				So(m.WriteOnce(), ShouldBeNil)
				So(plc.writes, ShouldEqual, 2)
				So(plc.value[2*PLC_SLOT_FLAGS+1], ShouldEqual, PLC_FLAG_EMERGENCY)
			})
		})

		Convey("a failed write is retried", func() {
			plc.err = errors.New("connection reset")
			So(m.WriteOnce(), ShouldNotBeNil)

			plc.err = nil
			So(m.WriteOnce(), ShouldBeNil)
			So(plc.writes, ShouldEqual, 1)
		})
	})

	Convey("A mirror needs an address", t, func() {
		_, err := NewPLCMirror(onboard.PLCConfig{}, newMockDevice(), nil, nil)
		So(err, ShouldNotBeNil)
	})
}
