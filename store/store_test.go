package store_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/store"
)

var _ = Describe("Store backends", func() {
	for name, newBundle := range backends() {
		name, newBundle := name, newBundle

		Describe(name, func() {
			var (
				bundle  *store.Bundle
				cleanup func()
			)

			BeforeEach(func() {
				bundle, cleanup = newBundle()
			})

			AfterEach(func() {
				cleanup()
			})

			Describe("missions", func() {
				It("creates and fetches a mission", func() {
					id, err := bundle.Missions.CreateMission("summarize the docs", "default")
					Expect(err).NotTo(HaveOccurred())

					m, err := bundle.Missions.GetMission(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(m.Objective).To(Equal("summarize the docs"))
					Expect(m.Status).To(Equal("PENDING"))
					Expect(m.ResourceClass).To(Equal("default"))
					Expect(m.Locked).To(BeFalse())
					Expect(m.FinishedAt).To(BeNil())
				})

				It("returns ErrNotFound for unknown ids", func() {
					_, err := bundle.Missions.GetMission("nope")
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				})

				It("stamps FinishedAt only on terminal statuses", func() {
					id, _ := bundle.Missions.CreateMission("o", "default")

					Expect(bundle.Missions.UpdateMissionStatus(id, "RUNNING", nil)).To(Succeed())
					m, _ := bundle.Missions.GetMission(id)
					Expect(m.FinishedAt).To(BeNil())

					summary := "done"
					Expect(bundle.Missions.UpdateMissionStatus(id, "SUCCESS", &summary)).To(Succeed())
					m, _ = bundle.Missions.GetMission(id)
					Expect(m.FinishedAt).NotTo(BeNil())
					Expect(*m.ResultSummary).To(Equal("done"))
				})

				It("increments adaptive cycles and accumulates cost", func() {
					id, _ := bundle.Missions.CreateMission("o", "default")

					n, err := bundle.Missions.IncrementAdaptiveCycles(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(Equal(1))
					n, _ = bundle.Missions.IncrementAdaptiveCycles(id)
					Expect(n).To(Equal(2))

					Expect(bundle.Missions.AddCost(id, 0.25)).To(Succeed())
					Expect(bundle.Missions.AddCost(id, 0.5)).To(Succeed())
					m, _ := bundle.Missions.GetMission(id)
					Expect(m.TotalCost).To(BeNumerically("~", 0.75, 1e-9))
				})

				It("lists missions most recent first with a limit", func() {
					for i := 0; i < 5; i++ {
						_, err := bundle.Missions.CreateMission("objective", "default")
						Expect(err).NotTo(HaveOccurred())
					}
					missions, err := bundle.Missions.ListMissions(3)
					Expect(err).NotTo(HaveOccurred())
					Expect(missions).To(HaveLen(3))
				})
			})

			Describe("resource-class locks", func() {
				It("grants the lock to only one mission per class", func() {
					first, _ := bundle.Missions.CreateMission("o1", "gpu")
					second, _ := bundle.Missions.CreateMission("o2", "gpu")

					ok, err := bundle.Missions.AcquireLock(first)
					Expect(err).NotTo(HaveOccurred())
					Expect(ok).To(BeTrue())

					ok, err = bundle.Missions.AcquireLock(second)
					Expect(err).NotTo(HaveOccurred())
					Expect(ok).To(BeFalse())
				})

				It("does not block missions in other classes", func() {
					first, _ := bundle.Missions.CreateMission("o1", "gpu")
					other, _ := bundle.Missions.CreateMission("o2", "cpu")

					ok, _ := bundle.Missions.AcquireLock(first)
					Expect(ok).To(BeTrue())
					ok, _ = bundle.Missions.AcquireLock(other)
					Expect(ok).To(BeTrue())
				})

				It("frees the class on release", func() {
					first, _ := bundle.Missions.CreateMission("o1", "gpu")
					second, _ := bundle.Missions.CreateMission("o2", "gpu")

					ok, _ := bundle.Missions.AcquireLock(first)
					Expect(ok).To(BeTrue())
					Expect(bundle.Missions.ReleaseLock(first)).To(Succeed())

					ok, _ = bundle.Missions.AcquireLock(second)
					Expect(ok).To(BeTrue())
				})
			})

			Describe("plans", func() {
				It("assigns monotonically increasing versions per mission", func() {
					missionID, _ := bundle.Missions.CreateMission("o", "default")

					for want := 1; want <= 3; want++ {
						rec := &store.PlanRecord{
							MissionID:   missionID,
							PlannerName: "sequential",
							Status:      "VALID",
							ContentHash: "abc",
							RawJSON:     "{}",
						}
						Expect(bundle.Plans.CreatePlan(rec)).To(Succeed())
						Expect(rec.ID).NotTo(BeEmpty())
						Expect(rec.Version).To(Equal(want))
					}
				})

				It("keeps superseded plans queryable", func() {
					missionID, _ := bundle.Missions.CreateMission("o", "default")
					first := &store.PlanRecord{MissionID: missionID, PlannerName: "risk", Status: "VALID", ContentHash: "h1", RawJSON: "{}"}
					Expect(bundle.Plans.CreatePlan(first)).To(Succeed())
					second := &store.PlanRecord{MissionID: missionID, PlannerName: "risk", Status: "VALID", ContentHash: "h2", RawJSON: "{}"}
					Expect(bundle.Plans.CreatePlan(second)).To(Succeed())

					Expect(bundle.Plans.UpdatePlanStatus(first.ID, "SUPERSEDED")).To(Succeed())
					Expect(bundle.Missions.SetActivePlan(missionID, second.ID)).To(Succeed())

					plans, err := bundle.Plans.GetPlansByMission(missionID)
					Expect(err).NotTo(HaveOccurred())
					Expect(plans).To(HaveLen(2))
					Expect(plans[0].Status).To(Equal("SUPERSEDED"))
					Expect(plans[1].Status).To(Equal("VALID"))

					m, _ := bundle.Missions.GetMission(missionID)
					Expect(*m.ActivePlanID).To(Equal(second.ID))
				})
			})

			Describe("tasks", func() {
				It("persists and updates task records", func() {
					missionID, _ := bundle.Missions.CreateMission("o", "default")
					plan := &store.PlanRecord{MissionID: missionID, PlannerName: "sequential", Status: "VALID", ContentHash: "h", RawJSON: "{}"}
					Expect(bundle.Plans.CreatePlan(plan)).To(Succeed())

					tasks := []*store.TaskRecord{
						{MissionID: missionID, PlanID: plan.ID, TaskKey: "a", TaskType: "TOOL", ToolName: "echo", Status: "PENDING"},
						{MissionID: missionID, PlanID: plan.ID, TaskKey: "b", TaskType: "TOOL", ToolName: "echo", DependsOn: []string{"a"}, Status: "PENDING"},
					}
					Expect(bundle.Tasks.CreateTasks(tasks)).To(Succeed())
					Expect(tasks[0].ID).NotTo(BeEmpty())

					tasks[0].Status = "SUCCESS"
					tasks[0].AttemptCount = 1
					result := "hello"
					tasks[0].Result = &result
					Expect(bundle.Tasks.UpdateTask(tasks[0])).To(Succeed())

					got, err := bundle.Tasks.GetTasksByPlan(plan.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(got).To(HaveLen(2))
					Expect(got[0].TaskKey).To(Equal("a"))
					Expect(got[0].Status).To(Equal("SUCCESS"))
					Expect(*got[0].Result).To(Equal("hello"))
					Expect(got[1].DependsOn).To(Equal([]string{"a"}))
				})
			})

			Describe("events", func() {
				It("returns events ordered by sequence", func() {
					missionID, _ := bundle.Missions.CreateMission("o", "default")

					for _, seq := range []int64{2, 1, 3} {
						Expect(bundle.Events.AppendEvent(&store.EventRecord{
							MissionID: missionID,
							EventType: "TASK_STARTED",
							Seq:       seq,
						})).To(Succeed())
					}

					events, err := bundle.Events.GetEventsByMission(missionID)
					Expect(err).NotTo(HaveOccurred())
					Expect(events).To(HaveLen(3))
					Expect(events[0].Seq).To(Equal(int64(1)))
					Expect(events[1].Seq).To(Equal(int64(2)))
					Expect(events[2].Seq).To(Equal(int64(3)))
				})

				It("keeps task references on events", func() {
					missionID, _ := bundle.Missions.CreateMission("o", "default")
					taskID := "task-123"
					Expect(bundle.Events.AppendEvent(&store.EventRecord{
						MissionID: missionID,
						TaskID:    &taskID,
						EventType: "TASK_COMPLETED",
						Seq:       1,
					})).To(Succeed())

					events, _ := bundle.Events.GetEventsByMission(missionID)
					Expect(events[0].TaskID).NotTo(BeNil())
					Expect(*events[0].TaskID).To(Equal("task-123"))
				})
			})
		})
	}
})
