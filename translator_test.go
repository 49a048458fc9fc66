package mdk_test

import (
	"reflect"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

func TestMapTranslator(t *testing.T) {
	mt := mdk.NewMapTranslator()
	id, err := mt.GetID("creator", "thing")
	test.MustBe(t, id, uint64(0), "first")
	test.ErrNil(t, err, "first")
	id, err = mt.GetID("creator", "thing")
	test.MustBe(t, id, uint64(0), "repeat")
	test.ErrNil(t, err, "repeat")

	id, err = mt.GetID("creator", "thing1")
	test.MustBe(t, id, uint64(1), "third")
	test.ErrNil(t, err, "third")

	id, err = mt.GetID("subject", "thing3")
	test.MustBe(t, id, uint64(0), "fourth")
	test.ErrNil(t, err, "fourth")

	val, err := mt.Get("creator", 0)
	test.ErrNil(t, err, "Get creator 0")
	test.MustBe(t, val, "thing")
	val, err = mt.Get("creator", 1)
	test.ErrNil(t, err, "Get creator 1")
	test.MustBe(t, val, "thing1")
	val, err = mt.Get("subject", 0)
	test.ErrNil(t, err, "Get subject 0")
	test.MustBe(t, val, "thing3")

	if _, err := mt.Get("subject", 7); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestConcMapTranslator(t *testing.T) {
	bt := mdk.NewMapTranslator()

	wg := &sync.WaitGroup{}
	rets := make([][]uint64, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		rets[i] = make([]uint64, 1000)
		wg.Add(1)
		go func(ret []uint64) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				id, err := bt.GetID("f1", strconv.Itoa(j))
				if err != nil {
					errs <- err
					return
				}
				ret[j] = id
			}
		}(rets[i])
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("error getting id: %v", err)
	}
	for i := 1; i < len(rets); i++ {
		if !reflect.DeepEqual(rets[i], rets[0]) {
			t.Fatalf("returned ids different in different threads: %v, %v", rets[i], rets[0])
		}
	}
	for _, ret := range rets {
		sort.Sort(test.Uint64Slice(ret))
		for j := 0; j < 1000; j++ {
			if ret[j] != uint64(j) {
				t.Fatalf("returned ids are not monotonic, pos: %v, val: %v, arr: %v", j, ret[j], ret)
			}
		}
	}
}
