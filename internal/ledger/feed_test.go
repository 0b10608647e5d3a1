package ledger_test

import (
	"testing"
	"time"

	"github.com/provenant/chainledger/internal/ledger"
)

func TestFeed_deliversAppendedEntries(t *testing.T) {
	feed := ledger.NewFeed(nil)
	ch, cancel := feed.Subscribe(4)
	defer cancel()

	l := ledger.New(ledger.NewMemoryStore(), feed, nil)
	e, err := l.Append(ctx, "acct-1", []byte("p"))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if got.EntryHash != e.EntryHash {
			t.Errorf("feed delivered %q, want %q", got.EntryHash, e.EntryHash)
		}
	case <-time.After(time.Second):
		t.Fatal("feed did not deliver the appended entry")
	}
}

func TestFeed_slowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	feed := ledger.NewFeed(nil)
	ch, cancel := feed.Subscribe(1)
	defer cancel()

	first := &ledger.Entry{EntryHash: "h1"}
	feed.Publish(first)
	feed.Publish(&ledger.Entry{EntryHash: "h2"}) // buffer full: dropped

	got := <-ch
	if got.EntryHash != first.EntryHash {
		t.Errorf("got %q, want the buffered first entry", got.EntryHash)
	}

	select {
	case e := <-ch:
		t.Errorf("unexpected second delivery %q; overflow should be dropped", e.EntryHash)
	default:
	}
}

func TestFeed_cancelClosesChannel(t *testing.T) {
	feed := ledger.NewFeed(nil)
	ch, cancel := feed.Subscribe(1)

	cancel()
	cancel() // safe to call twice

	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic on the closed channel.
	feed.Publish(&ledger.Entry{EntryHash: "h"})
}
