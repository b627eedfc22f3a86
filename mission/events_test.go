package mission_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/mission"
	"flotilla/store"
)

var _ = Describe("EventEmitter", func() {
	var bundle *store.Bundle
	var emitter *mission.EventEmitter

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		emitter = mission.NewEventEmitter(bundle.Events, nil)
	})

	It("assigns strictly increasing sequence numbers per mission", func() {
		for i := 0; i < 5; i++ {
			emitter.Emit("m1", "", mission.EventTaskStarted, "", fmt.Sprintf("step %d", i))
		}

		events, err := bundle.Events.GetEventsByMission("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(5))
		for i, ev := range events {
			Expect(ev.Seq).To(Equal(int64(i + 1)))
		}
	})

	It("keeps mission sequences independent", func() {
		emitter.Emit("m1", "", mission.EventMissionStarted, "", "")
		emitter.Emit("m2", "", mission.EventMissionStarted, "", "")
		emitter.Emit("m1", "", mission.EventMissionCompleted, "", "")

		first, err := bundle.Events.GetEventsByMission("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(first[len(first)-1].Seq).To(Equal(int64(2)))

		second, err := bundle.Events.GetEventsByMission("m2")
		Expect(err).NotTo(HaveOccurred())
		Expect(second[len(second)-1].Seq).To(Equal(int64(1)))
	})

	It("resumes after the highest persisted sequence", func() {
		emitter.Emit("m1", "", mission.EventMissionStarted, "", "")
		emitter.Emit("m1", "", mission.EventMissionPlanning, "", "")

		fresh := mission.NewEventEmitter(bundle.Events, nil)
		fresh.Emit("m1", "", mission.EventMissionCompleted, "", "")

		events, err := bundle.Events.GetEventsByMission("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(3))
		Expect(events[2].Seq).To(Equal(int64(3)))
		Expect(events[2].EventType).To(Equal(mission.EventMissionCompleted))
	})

	It("records the task ID only for task-level events", func() {
		emitter.Emit("m1", "", mission.EventMissionStarted, "", "")
		emitter.Emit("m1", "task-42", mission.EventTaskStarted, "", "")

		events, err := bundle.Events.GetEventsByMission("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].TaskID).To(BeNil())
		Expect(events[1].TaskID).NotTo(BeNil())
		Expect(*events[1].TaskID).To(Equal("task-42"))
	})

	It("never produces duplicate sequence numbers under concurrent emits", func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				emitter.Emit("m1", "", mission.EventTaskCompleted, "", "")
			}()
		}
		wg.Wait()

		events, err := bundle.Events.GetEventsByMission("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(50))
		seen := make(map[int64]bool)
		for _, ev := range events {
			Expect(seen[ev.Seq]).To(BeFalse(), "sequence %d assigned twice", ev.Seq)
			seen[ev.Seq] = true
		}
	})
})
