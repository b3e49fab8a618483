package status

import "testing"

func TestMemorySink(t *testing.T) {
	m := NewMemory()

	m.SetStatus("acct", "", "฿ 1.00")
	m.SetStatus("acct", "Mining (Generation)", "2.00 Mh/s")
	if got := m.Status("acct", ""); got != "฿ 1.00" {
		t.Errorf("primary channel = %q", got)
	}
	if got := m.Status("acct", "Mining (Generation)"); got != "2.00 Mh/s" {
		t.Errorf("mining channel = %q", got)
	}

	// Last write wins per (account, channel) pair.
	m.SetStatus("acct", "", "ERROR")
	if got := m.Status("acct", ""); got != "ERROR" {
		t.Errorf("after overwrite = %q", got)
	}
	if got := m.Status("acct", "Mining (Generation)"); got != "2.00 Mh/s" {
		t.Errorf("other channel disturbed: %q", got)
	}

	// Empty text clears the entry.
	m.SetStatus("acct", "Mining (Generation)", "")
	if got := m.Status("acct", "Mining (Generation)"); got != "" {
		t.Errorf("after clear = %q", got)
	}

	m.SetAggregate("3.75")
	if got := m.Aggregate(); got != "3.75" {
		t.Errorf("aggregate = %q", got)
	}

	m.RefreshSidebar()
	m.RefreshSidebar()
	if got := m.SidebarRefreshes(); got != 2 {
		t.Errorf("sidebar refreshes = %d, want 2", got)
	}
}
