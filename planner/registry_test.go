package planner_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/planner"
)

var _ = Describe("Registry", func() {

	newBlueprint := func(name, version string) planner.Blueprint {
		return planner.Blueprint{
			Name:    name,
			Version: version,
			New:     func() planner.Planner { return planner.NewSequentialPlanner() },
		}
	}

	It("admits only whitelisted builtins", func() {
		r := planner.NewRegistry([]string{"alpha"}, nil, nil)
		r.RegisterBuiltin(newBlueprint("alpha", "1.0.0"))
		r.RegisterBuiltin(newBlueprint("beta", "1.0.0"))
		Expect(r.Discover()).To(Succeed())
		Expect(r.ListNames()).To(Equal([]string{"alpha"}))
	})

	It("admits nothing with an empty whitelist", func() {
		r := planner.NewRegistry(nil, nil, nil)
		r.RegisterBuiltin(newBlueprint("alpha", "1.0.0"))
		Expect(r.Discover()).To(Succeed())
		Expect(r.ListNames()).To(BeEmpty())
	})

	It("never executes planner code during discovery", func() {
		r := planner.NewRegistry([]string{"booby_trap"}, nil, nil)
		r.RegisterBuiltin(planner.Blueprint{
			Name:    "booby_trap",
			Version: "1.0.0",
			New: func() planner.Planner {
				panic("constructor must not run during discovery")
			},
		})
		Expect(r.Discover()).To(Succeed())
		Expect(r.ListNames()).To(Equal([]string{"booby_trap"}))
	})

	It("fingerprints builtins by name and version", func() {
		r := planner.NewRegistry([]string{"alpha"}, nil, nil)
		r.RegisterBuiltin(newBlueprint("alpha", "1.0.0"))
		Expect(r.Discover()).To(Succeed())
		entry, ok := r.Lookup("alpha")
		Expect(ok).To(BeTrue())
		first := entry.Fingerprint.SHA256
		Expect(first).NotTo(BeEmpty())

		r2 := planner.NewRegistry([]string{"alpha"}, nil, nil)
		r2.RegisterBuiltin(newBlueprint("alpha", "2.0.0"))
		Expect(r2.Discover()).To(Succeed())
		entry2, _ := r2.Lookup("alpha")
		Expect(entry2.Fingerprint.SHA256).NotTo(Equal(first))
	})

	It("discovers whitelisted plugin binaries with a content fingerprint", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "flotilla-planner-wave")
		Expect(os.WriteFile(path, []byte("fake binary"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "unrelated"), []byte("x"), 0o644)).To(Succeed())

		r := planner.NewRegistry([]string{"wave"}, []string{dir}, nil)
		Expect(r.Discover()).To(Succeed())

		entry, ok := r.Lookup("wave")
		Expect(ok).To(BeTrue())
		Expect(entry.Kind).To(Equal(planner.KindExternal))
		Expect(entry.Path).To(Equal(path))
		Expect(entry.Fingerprint.SHA256).NotTo(BeEmpty())
		Expect(entry.Fingerprint.ModTime).NotTo(BeZero())
	})

	It("skips non-whitelisted plugin binaries", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "flotilla-planner-rogue"), []byte("x"), 0o755)).To(Succeed())

		r := planner.NewRegistry([]string{"wave"}, []string{dir}, nil)
		Expect(r.Discover()).To(Succeed())
		Expect(r.ListNames()).To(BeEmpty())
	})

	It("skips unreadable plugin directories without failing discovery", func() {
		r := planner.NewRegistry([]string{"wave"}, []string{"/nonexistent/plugins"}, nil)
		Expect(r.Discover()).To(Succeed())
		Expect(r.ListNames()).To(BeEmpty())
	})

	It("rebuilds entries on rediscovery", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "flotilla-planner-wave")
		Expect(os.WriteFile(path, []byte("v1"), 0o755)).To(Succeed())

		r := planner.NewRegistry([]string{"wave"}, []string{dir}, nil)
		Expect(r.Discover()).To(Succeed())
		entry, _ := r.Lookup("wave")
		first := entry.Fingerprint.SHA256

		Expect(os.WriteFile(path, []byte("v2 content"), 0o755)).To(Succeed())
		Expect(r.Discover()).To(Succeed())
		entry, _ = r.Lookup("wave")
		Expect(entry.Fingerprint.SHA256).NotTo(Equal(first))
	})
})
