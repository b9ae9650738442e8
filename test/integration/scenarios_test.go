//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/config"
	"github.com/eliteGoblin/focusd/brick_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/infra"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/brick_mon/test/fixtures"
)

const (
	browser = "com.android.chrome"
	dialer  = "com.google.android.dialer"
	game    = "com.supercell.clashofclans"
)

var _ = Describe("Enforcement", func() {
	var (
		ctx       context.Context
		store     *infra.SQLCipherStore
		clock     *fixtures.FakeClock
		renderer  *fixtures.RecordingRenderer
		presenter *fixtures.RecordingPresenter
		rt        *daemon.Runtime
		cfg       *config.Config
	)

	foreground := func(pkg, url string) usecase.Evaluation {
		rt.Resolver.Push(domain.ForegroundEvent{Package: pkg, URL: url, At: clock.Now()})
		return rt.Enforcer.Evaluate(ctx, usecase.Foreground{Package: pkg, URL: url}, false)
	}

	newRuntime := func(start time.Time) {
		clock = fixtures.NewFakeClock(start)
		rt = daemon.NewRuntime(cfg, store, daemon.Host{
			Renderer:  renderer,
			Presenter: presenter,
			Notifier:  &fixtures.RecordingNotifier{},
			Probe:     fixtures.NewGrantedProbe(),
		}, clock, zap.NewNop())
		Expect(rt.Start(ctx)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		rt = nil
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewSQLCipherStore(GinkgoT().TempDir(), key, infra.NewProcessManager())
		Expect(err).NotTo(HaveOccurred())
		for _, app := range policy.NewRegistry().Seeds() {
			Expect(store.AddEssentialApp(ctx, app)).To(Succeed())
		}

		cfg = config.Default()
		cfg.Session.MonitorInterval = config.Duration(10 * time.Millisecond)
		cfg.Overlay.LaunchTimeout = config.Duration(300 * time.Millisecond)
		cfg.Overlay.LaunchPoll = config.Duration(5 * time.Millisecond)
		cfg.Overlay.SessionPoll = config.Duration(10 * time.Millisecond)
		renderer = &fixtures.RecordingRenderer{}
		presenter = &fixtures.RecordingPresenter{}
	})

	AfterEach(func() {
		if rt != nil {
			rt.Close()
		}
		Expect(store.Close()).To(Succeed())
	})

	Context("a website blocked behind a wait challenge", func() {
		BeforeEach(func() {
			newRuntime(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
			blocks := usecase.NewBlockService(store, clock, zap.NewNop())
			_, err := blocks.Add(ctx, "instagram.com", domain.KindWebsite, domain.WaitChallenge(10), 0)
			Expect(err).NotTo(HaveOccurred())
		})

		It("unlocks temporarily once the wait completes", func() {
			ev := foreground(browser, "https://www.instagram.com/explore/")
			Expect(ev.Outcome).To(Equal(usecase.OutcomeChallenge))
			Expect(ev.Identifier).To(Equal("instagram.com"))
			Expect(presenter.Count()).To(Equal(1))

			decision := *ev.Decision
			_, err := rt.Challenges.StartWait(ctx, decision.Identifier, decision.Challenge.WaitMinutes)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Challenges.CompleteWait(ctx, decision, usecase.UnlockTemporary)).
				To(MatchError(domain.ErrChallengeIncomplete))

			clock.Advance(10 * time.Minute)
			Expect(rt.Challenges.CompleteWait(ctx, decision, usecase.UnlockTemporary)).To(Succeed())
			Expect(rt.Registry.Resolve(ctx, "instagram.com", domain.KindWebsite)).To(BeNil())

			clock.Advance(cfg.Challenge.TemporaryUnlock.D() + time.Second)
			Expect(rt.Registry.Resolve(ctx, "instagram.com", domain.KindWebsite)).NotTo(BeNil())
		})
	})

	Context("a focus session with an allowlisted dialer", func() {
		BeforeEach(func() {
			newRuntime(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
			def, err := rt.Sessions.SaveDefinition(ctx, domain.Session{
				Type:                   domain.SessionFocus,
				Name:                   "Deep work",
				DurationMinutes:        25,
				AllowEmergencyOverride: true,
				Allowlist:              []string{dialer},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Sessions.StartDurationSession(ctx, def.ID)).To(Succeed())
		})

		It("covers other apps and launches the dialer through a grace", func() {
			Expect(foreground(game, "").Outcome).To(Equal(usecase.OutcomeSessionBlocked))
			Expect(rt.Overlay.State()).To(Equal(domain.OverlayShowing))

			Expect(rt.Overlay.LaunchAllowedApp(ctx, dialer)).To(Succeed())
			Expect(rt.Overlay.State()).To(Equal(domain.OverlayPendingLaunchGrace))
			rt.Resolver.Push(domain.ForegroundEvent{Package: dialer, At: clock.Now()})

			Eventually(rt.Overlay.State).Should(Equal(domain.OverlayHidden))
			Expect(foreground(dialer, "").Outcome).To(Equal(usecase.OutcomeAllowed))
			Expect(rt.Sessions.IsPhoneBricked()).To(BeTrue())
			Expect(rt.Sessions.Remaining()).To(Equal(25 * time.Minute))
		})

		It("ends the session after the emergency tap challenge", func() {
			foreground(game, "")
			Expect(rt.Overlay.BeginEmergency(ctx)).To(Succeed())
			Expect(rt.Overlay.State()).To(Equal(domain.OverlayEmergencyChallenge))

			cur, ok := rt.Sessions.Current()
			Expect(ok).To(BeTrue())
			for i := 1; i < cfg.Overlay.EmergencyTaps; i++ {
				left, err := rt.Overlay.Tap(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(left).To(Equal(cfg.Overlay.EmergencyTaps - i))
			}
			_, err := rt.Overlay.Tap(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(rt.Sessions.IsPhoneBricked()).To(BeFalse())
			Eventually(rt.Overlay.State).Should(Equal(domain.OverlayHidden))

			logs, err := rt.Sessions.Logs(ctx, cur.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].Status).To(Equal(domain.StatusEmergencyOverride))
		})
	})

	Context("an overnight sleep schedule", func() {
		BeforeEach(func() {
			newRuntime(time.Date(2026, 3, 2, 23, 5, 0, 0, time.UTC))
			schedules := usecase.NewScheduleService(store, zap.NewNop())
			_, err := schedules.Save(ctx, domain.Schedule{
				Name:        "Bedtime",
				StartHour:   23,
				EndHour:     6,
				ActiveDays:  domain.EveryDay,
				WholeDevice: true,
				SessionType: domain.SessionSleepSchedule,
				Enabled:     true,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("bricks the device until the window closes", func() {
			Expect(rt.Trigger.Tick(ctx)).To(BeTrue())
			Expect(rt.Sessions.IsPhoneBricked()).To(BeTrue())

			cur, ok := rt.Sessions.Current()
			Expect(ok).To(BeTrue())
			Expect(cur.EndsAt).To(Equal(time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)))
			Expect(rt.Trigger.Tick(ctx)).To(BeFalse(), "one session at a time")

			clock.Set(cur.EndsAt)
			Eventually(rt.Sessions.IsPhoneBricked).Should(BeFalse())

			logs, err := rt.Sessions.Logs(ctx, cur.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(logs[0].Status).To(Equal(domain.StatusCompleted))
			Expect(rt.Trigger.Tick(ctx)).To(BeFalse(), "window already closed")
		})
	})
})
