package cache

import "sort"

// MemoryTier 按 qualifier 维护以 slot 为下标的查找表，slot 与 AngleIndex 一一对应。
// 没有淘汰策略，条目一旦写入便保留到进程结束（或显式 Clear）。
type MemoryTier struct {
	tables map[string][]*Entry
}

// NewMemoryTier 返回空的内存层。
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{tables: make(map[string][]*Entry)}
}

// Insert 幂等写入：slot 已有条目时不做任何事，否则按需扩展表并写入。
// 返回是否实际写入。
func (m *MemoryTier) Insert(qualifier string, slot int, entry *Entry) bool {
	if slot < 0 || entry == nil {
		return false
	}
	table := m.tables[qualifier]
	if slot < len(table) && table[slot] != nil {
		return false
	}
	if slot >= len(table) {
		grown := make([]*Entry, slot+1)
		copy(grown, table)
		table = grown
	}
	table[slot] = entry
	m.tables[qualifier] = table
	return true
}

// Get 返回 (qualifier, slot) 的条目，不存在时返回 nil。
func (m *MemoryTier) Get(qualifier string, slot int) *Entry {
	table := m.tables[qualifier]
	if slot < 0 || slot >= len(table) {
		return nil
	}
	return table[slot]
}

// Len 返回 qualifier 对应表的长度（含空洞）。
func (m *MemoryTier) Len(qualifier string) int {
	return len(m.tables[qualifier])
}

// Resident 返回 qualifier 下已物化的 slot 列表。
func (m *MemoryTier) Resident(qualifier string) []int {
	var slots []int
	for slot, e := range m.tables[qualifier] {
		if e != nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

// Qualifiers 返回已出现过的 qualifier，按字典序排列。
func (m *MemoryTier) Qualifiers() []string {
	keys := make([]string, 0, len(m.tables))
	for k := range m.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SizeBytes 汇总所有 qualifier、所有 slot 的元素数 × 元素大小，仅供调用方做内存统计。
func (m *MemoryTier) SizeBytes() int64 {
	var total int64
	for _, table := range m.tables {
		for _, e := range table {
			total += e.SizeBytes()
		}
	}
	return total
}

// Clear 丢弃全部已物化条目。
func (m *MemoryTier) Clear() {
	m.tables = make(map[string][]*Entry)
}
