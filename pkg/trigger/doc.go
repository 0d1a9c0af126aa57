// Package trigger produces the events that drive rule processing. Sources
// emit TriggerEvents on a channel: ChannelSource for programmatic feeds of
// entity changes, CronSource for rules with scheduled triggers.
package trigger
