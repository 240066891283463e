package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/parcel/internal/env"
	"github.com/luma/parcel/storage"
)

var _ = Describe("http router", func() {
	var store *storage.InmemoryStore

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
	})

	get := func(path string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		newRouter(false, store, zap.NewNop()).ServeHTTP(recorder, req)
		return recorder
	}

	It("answers pings", func() {
		resp := get("/ping")
		Expect(resp.Code).To(Equal(http.StatusOK))
		Expect(resp.Body.String()).To(Equal("pong"))
	})

	It("reports health", func() {
		Expect(get("/health").Code).To(Equal(http.StatusOK))
	})

	It("lists stored files as JSON", func() {
		Expect(get("/files").Body.String()).To(MatchJSON(`{"files":[]}`))

		Expect(store.Save(context.Background(), "a.txt", []byte("a"))).To(Succeed())
		Expect(get("/files").Body.String()).To(MatchJSON(`{"files":["a.txt"]}`))
	})
})

var _ = Describe("openStore", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "parcel-serve-")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("opens a disk store in the storage dir", func() {
		store, closeStore, err := openStore(&env.Config{Storage: env.StorageDisk, StorageDir: dir}, zap.NewNop())
		Expect(err).To(Succeed())
		defer closeStore()

		Expect(store).To(BeAssignableToTypeOf(&storage.DiskStore{}))
		Expect(store.Save(context.Background(), "a.txt", []byte("a"))).To(Succeed())
		Expect(filepath.Join(dir, "a.txt")).To(BeARegularFile())
	})

	It("keeps a memory store across restarts through its snapshot", func() {
		conf := &env.Config{Storage: env.StorageMemory, Snapshot: filepath.Join(dir, "snapshot.json")}

		store, closeStore, err := openStore(conf, zap.NewNop())
		Expect(err).To(Succeed())
		Expect(store.Save(context.Background(), "a.txt", []byte("hello"))).To(Succeed())
		Expect(closeStore()).To(Succeed())

		store, closeStore, err = openStore(conf, zap.NewNop())
		Expect(err).To(Succeed())
		defer closeStore()

		Expect(store.Load(context.Background(), "a.txt")).To(Equal([]byte("hello")))
	})

	It("refuses a corrupt snapshot", func() {
		snapshot := filepath.Join(dir, "snapshot.json")
		Expect(os.WriteFile(snapshot, []byte("[]"), 0640)).To(Succeed())

		_, _, err := openStore(&env.Config{Storage: env.StorageMemory, Snapshot: snapshot}, zap.NewNop())
		Expect(err).NotTo(Succeed())
	})
})
