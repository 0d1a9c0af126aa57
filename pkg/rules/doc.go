// Package rules defines the automation rule model: triggers, condition
// trees, and typed action lists.
//
// A Rule pairs a trigger descriptor with an ordered list of conditions and
// actions. Conditions form a tree of leaf comparisons and nested AND/OR
// groups (ConditionNode); actions are typed steps executed in order when the
// conditions pass. Rules are plain data: evaluation lives in the engine
// subpackage, persistence in the store and source subpackages.
//
// Rules serialize to JSON (storage documents) and YAML (rule files) and
// round-trip losslessly, including the leaf/group condition union.
package rules
