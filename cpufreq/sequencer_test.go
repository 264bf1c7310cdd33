package cpufreq

import (
	"errors"
	"time"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type recordingTracer struct {
	started []*Transition
	ended   []*Transition
}

func (r *recordingTracer) StartTransition(t *Transition)     { r.started = append(r.started, t) }
func (r *recordingTracer) EnterState(t *Transition, s State) {}
func (r *recordingTracer) EndTransition(t *Transition)       { r.ended = append(r.ended, t) }

func w(offset, value uint32) socfpga.Access {
	return socfpga.Access{Write: true, Offset: offset, Value: value}
}

func dividerWrites(c PLLConfig) []socfpga.Access {
	return []socfpga.Access{
		w(socfpga.ALTR_MPUCLK, c.MPUDiv),
		w(socfpga.ALTR_MAINCLK, c.MainDiv),
		w(socfpga.ALTR_DBGATCLK, c.DbgDiv),
		w(socfpga.MAINPLL_CFGS2FUSER0CLK, c.PeriphDiv),
	}
}

func vcoWrites(c PLLConfig, force uint32) []socfpga.Access {
	return []socfpga.Access{
		w(socfpga.BYPASS, socfpga.BYPASS_MAINPLL),
		w(socfpga.MAINPLL_VCO, EncodeVCO(c.VCONumer, c.VCODenom)|force),
		w(socfpga.BYPASS, 0),
	}
}

var _ = Describe("Driver", func() {
	var (
		sim    *socfpga.Sim
		tracer *recordingTracer
		d      *Driver
	)

	BeforeEach(func() {
		var err error
		sim = socfpga.NewSim()
		tracer = &recordingTracer{}
		d, err = New(sim, Config{
			Wait:   &WaitPolicy{Timeout: time.Second, StableReads: 10},
			Tracer: tracer,
			Logger: discard,
		})
		Expect(err).NotTo(HaveOccurred())
		d.now = (&fakeClock{step: time.Millisecond}).now
	})

	It("should write the dividers before entering bypass when raising the VCO", func() {
		Expect(d.TransitionTo(0)).To(Succeed())

		want := append(dividerWrites(DefaultTable[0].Config), vcoWrites(DefaultTable[0].Config, 0)...)
		Expect(sim.Writes()).To(Equal(want))
		Expect(d.CurrentFrequencyKHz()).To(Equal(uint32(1200000)))
	})

	It("should reprogram the VCO before the dividers when lowering the VCO", func() {
		load(sim, DefaultTable[0])

		Expect(d.TransitionTo(2)).To(Succeed())

		want := append(vcoWrites(DefaultTable[2].Config, 0), dividerWrites(DefaultTable[2].Config)...)
		Expect(sim.Writes()).To(Equal(want))
		Expect(d.CurrentFrequencyKHz()).To(Equal(uint32(800000)))
	})

	It("should not touch bypass when the VCO doesn't change", func() {
		Expect(d.TransitionTo(3)).To(Succeed())

		Expect(sim.Writes()).To(Equal(dividerWrites(DefaultTable[3].Config)))
		for _, a := range sim.Accesses() {
			Expect(a.Offset).NotTo(Equal(uint32(socfpga.BYPASS)), "%v", a)
		}
		Expect(d.CurrentFrequencyKHz()).To(Equal(uint32(400000)))
	})

	It("should not touch the VCO when rewriting the current operating point", func() {
		Expect(d.TransitionTo(2)).To(Succeed())

		Expect(sim.Writes()).To(Equal(dividerWrites(DefaultTable[2].Config)))
		Expect(tracer.ended[0].Path).To(Equal(PathDividers))
	})

	It("should wait for ten locked reads after the PLL relocks", func() {
		sim.UnlockReads = 7

		Expect(d.TransitionTo(1)).To(Succeed())

		n := 0
		for _, a := range sim.Accesses() {
			if a.Offset == socfpga.INTER {
				n++
			}
		}
		Expect(n).To(Equal(17))
	})

	It("should force configured bits into the VCO register", func() {
		d.force = VCOEnable

		Expect(d.TransitionTo(1)).To(Succeed())

		Expect(sim.Peek(socfpga.MAINPLL_VCO)).To(Equal(EncodeVCO(79, 0) | VCOEnable))
	})

	It("should reject an index outside the table without touching registers", func() {
		Expect(d.TransitionTo(len(DefaultTable))).To(MatchError(ErrInvalidIndex))
		Expect(d.TransitionTo(-1)).To(MatchError(ErrInvalidIndex))

		Expect(sim.Accesses()).To(BeEmpty())
		Expect(tracer.started).To(BeEmpty())
	})

	It("should run an operating point that isn't in the table", func() {
		op := OperatingPoint{KHz: 600000, Config: PLLConfig{
			VCONumer: 47, MPUDiv: 1, MainDiv: 2, DbgDiv: 2, PeriphDiv: 11,
		}}

		Expect(d.Transition(op)).To(Succeed())

		Expect(d.CurrentFrequencyKHz()).To(Equal(uint32(600000)))
		Expect(tracer.ended).To(HaveLen(1))
		Expect(tracer.ended[0].Index).To(Equal(-1))
		Expect(tracer.ended[0].Path).To(Equal(PathLower))
	})

	It("should leave bypass and report a timeout when the PLL never locks", func() {
		sim.UnlockReads = -1

		err := d.TransitionTo(0)

		Expect(err).To(MatchError(ErrHardwareTimeout))
		want := append(dividerWrites(DefaultTable[0].Config), vcoWrites(DefaultTable[0].Config, 0)...)
		Expect(sim.Writes()).To(Equal(want))
		Expect(sim.Peek(socfpga.BYPASS)).To(Equal(uint32(0)))
		Expect(tracer.ended[0].Err).To(MatchError(ErrHardwareTimeout))
		Expect(tracer.ended[0].States).To(Equal([]State{
			StateProgramRegisters,
			StateEnterBypass,
			StateAwaitIdle1,
			StateProgramRegisters,
			StateAwaitLock,
			StateExitBypass,
			StateAwaitIdle2,
			StateIdle,
		}))
	})

	It("should leave bypass without writing the VCO when the clock manager stays busy", func() {
		sim.BusyReads = -1
		load(sim, DefaultTable[0])

		err := d.TransitionTo(4)

		Expect(err).To(MatchError(ErrHardwareTimeout))
		Expect(sim.Writes()).To(Equal([]socfpga.Access{
			w(socfpga.BYPASS, socfpga.BYPASS_MAINPLL),
			w(socfpga.BYPASS, 0),
		}))
		Expect(sim.Peek(socfpga.MAINPLL_VCO)).To(Equal(EncodeVCO(95, 0) | VCOEnable))
	})

	It("should keep the other PLLs' bypass bits while bypassing the main PLL", func() {
		others := uint32(socfpga.BYPASS_PERPLL | socfpga.BYPASS_SDRPLL)
		sim.Set(socfpga.BYPASS, others)
		load(sim, DefaultTable[0])

		Expect(d.TransitionTo(4)).To(Succeed())

		var bypass []socfpga.Access
		for _, a := range sim.Writes() {
			if a.Offset == socfpga.BYPASS {
				bypass = append(bypass, a)
			}
		}
		Expect(bypass).To(Equal([]socfpga.Access{
			w(socfpga.BYPASS, others|socfpga.BYPASS_MAINPLL),
			w(socfpga.BYPASS, others),
		}))
		Expect(sim.Peek(socfpga.BYPASS)).To(Equal(others))
	})

	It("should not enter bypass when the bypass register can't be read", func() {
		load(sim, DefaultTable[0])
		sim.Fail(socfpga.BYPASS, errors.New("bus fault"))

		Expect(d.TransitionTo(4)).To(MatchError(ErrRegisterAccess))
		Expect(sim.Writes()).To(BeEmpty())
		Expect(sim.Peek(socfpga.MAINPLL_VCO)).To(Equal(EncodeVCO(95, 0) | VCOEnable))
	})

	It("should fail without writing when the registers can't be read", func() {
		sim.Fail(socfpga.MAINPLL_VCO, errors.New("bus fault"))

		Expect(d.TransitionTo(0)).To(MatchError(ErrRegisterAccess))
		Expect(sim.Writes()).To(BeEmpty())
	})
})

var _ = Describe("Driver with mocked registers", func() {
	var (
		mockCtrl *gomock.Controller
		regs     *MockRegs
		tracer   *MockTracer
		d        *Driver
	)

	BeforeEach(func() {
		var err error
		mockCtrl = gomock.NewController(GinkgoT())
		regs = NewMockRegs(mockCtrl)
		tracer = NewMockTracer(mockCtrl)
		d, err = New(regs, Config{
			Wait:   &WaitPolicy{Timeout: time.Second, StableReads: 10},
			Tracer: tracer,
			Logger: discard,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectCurrent := func(mpu, cnt, vco uint32) *gomock.Call {
		return regs.EXPECT().Read32(uint32(socfpga.MAINPLL_VCO)).Return(vco, nil).
			After(regs.EXPECT().Read32(uint32(socfpga.MAINPLL_MPUCLK)).Return(cnt, nil).
				After(regs.EXPECT().Read32(uint32(socfpga.ALTR_MPUCLK)).Return(mpu, nil)))
	}

	It("should report every state of a VCO decrease", func() {
		var ended *Transition
		regs.EXPECT().Read32(uint32(socfpga.STAT)).Return(uint32(0), nil).AnyTimes()
		regs.EXPECT().Read32(uint32(socfpga.INTER)).Return(uint32(socfpga.INTER_ALL_LOCKED), nil).Times(10)
		regs.EXPECT().Read32(uint32(socfpga.BYPASS)).Return(uint32(0), nil)
		regs.EXPECT().Write32(gomock.Any(), gomock.Any()).Return(nil).Times(7)
		gomock.InOrder(
			expectCurrent(1, 0, EncodeVCO(95, 0)),
			tracer.EXPECT().StartTransition(gomock.Any()),
			tracer.EXPECT().EnterState(gomock.Any(), StateEnterBypass),
			tracer.EXPECT().EnterState(gomock.Any(), StateAwaitIdle1),
			tracer.EXPECT().EnterState(gomock.Any(), StateProgramRegisters),
			tracer.EXPECT().EnterState(gomock.Any(), StateAwaitLock),
			tracer.EXPECT().EnterState(gomock.Any(), StateExitBypass),
			tracer.EXPECT().EnterState(gomock.Any(), StateAwaitIdle2),
			tracer.EXPECT().EnterState(gomock.Any(), StateProgramRegisters),
			tracer.EXPECT().EnterState(gomock.Any(), StateIdle),
			tracer.EXPECT().EndTransition(gomock.Any()).Do(func(t *Transition) { ended = t }),
		)

		Expect(d.TransitionTo(2)).To(Succeed())

		Expect(ended).NotTo(BeNil())
		Expect(ended.ID).NotTo(BeEmpty())
		Expect(ended.Index).To(Equal(2))
		Expect(ended.Path).To(Equal(PathLower))
		Expect(ended.FromKHz).To(Equal(uint32(1200000)))
		Expect(ended.ToKHz).To(Equal(uint32(800000)))
		Expect(ended.FromVCOHz).To(Equal(uint64(2400000000)))
		Expect(ended.ToVCOHz).To(Equal(uint64(1600000000)))
		Expect(ended.Err).NotTo(HaveOccurred())
	})

	It("should leave bypass when the VCO write fails", func() {
		busFault := errors.New("bus fault")
		c := DefaultTable[0].Config
		tracer.EXPECT().StartTransition(gomock.Any())
		tracer.EXPECT().EnterState(gomock.Any(), gomock.Any()).AnyTimes()
		tracer.EXPECT().EndTransition(gomock.Any())
		gomock.InOrder(
			expectCurrent(1, 0, EncodeVCO(63, 0)),
			regs.EXPECT().Write32(uint32(socfpga.ALTR_MPUCLK), c.MPUDiv).Return(nil),
			regs.EXPECT().Write32(uint32(socfpga.ALTR_MAINCLK), c.MainDiv).Return(nil),
			regs.EXPECT().Write32(uint32(socfpga.ALTR_DBGATCLK), c.DbgDiv).Return(nil),
			regs.EXPECT().Write32(uint32(socfpga.MAINPLL_CFGS2FUSER0CLK), c.PeriphDiv).Return(nil),
			regs.EXPECT().Read32(uint32(socfpga.BYPASS)).Return(uint32(socfpga.BYPASS_PERPLL), nil),
			regs.EXPECT().Write32(uint32(socfpga.BYPASS), uint32(socfpga.BYPASS_PERPLL|socfpga.BYPASS_MAINPLL)).Return(nil),
			regs.EXPECT().Read32(uint32(socfpga.STAT)).Return(uint32(0), nil),
			regs.EXPECT().Write32(uint32(socfpga.MAINPLL_VCO), EncodeVCO(95, 0)).Return(busFault),
			regs.EXPECT().Write32(uint32(socfpga.BYPASS), uint32(socfpga.BYPASS_PERPLL)).Return(nil),
			regs.EXPECT().Read32(uint32(socfpga.STAT)).Return(uint32(0), nil),
		)

		err := d.TransitionTo(0)

		Expect(err).To(MatchError(ErrRegisterAccess))
		Expect(err.Error()).To(ContainSubstring("bus fault"))
	})

	It("should stop at the first failed read", func() {
		regs.EXPECT().Read32(uint32(socfpga.ALTR_MPUCLK)).Return(uint32(0), errors.New("unmapped"))

		Expect(d.TransitionTo(1)).To(MatchError(ErrRegisterAccess))
	})
})
