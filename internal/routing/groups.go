// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package routing

// Ship group IDs by hull class. A group may appear in more than one class.
var shipGroups = map[string][]int64{
	TopicFrigate:       {25, 324, 830, 831, 834, 893, 1283, 1527, 237},
	TopicDestroyer:     {420, 541, 1305, 1534},
	TopicCruiser:       {26, 358, 894, 832, 963, 833, 906, 1972},
	TopicBattlecruiser: {419, 540, 1201},
	TopicBattleship:    {27, 898, 900},
	TopicCapital:       {547, 485, 1538, 883},
	TopicFreighter:     {513, 902},
	TopicSupercarrier:  {GroupSupercarrier},
	TopicTitan:         {GroupTitan},
	TopicCitadel:       {1657, 1404, 1406},
	TopicBig:           {547, 485, 1538, 883, GroupSupercarrier, GroupTitan, 513, 902, 941},
	TopicT1:            {25, 420, 26, 419, 27},
	TopicT2:            {324, 830, 831, 834, 893, 541, 358, 894, 832, 833, 906, 540, 898, 900, 1283, 1527, 1534, 1972},
	TopicT3:            {963, 1305},
}

// Group IDs for the two capital hull classes valued from the custom price table.
const (
	GroupTitan        int64 = 30
	GroupSupercarrier int64 = 659
)

// groupTopics is the inverse of shipGroups.
var groupTopics = func() map[int64][]string {
	out := make(map[int64][]string)
	for _, topic := range shipTopics {
		for _, g := range shipGroups[topic] {
			out[g] = append(out[g], topic)
		}
	}
	return out
}()

// TopicsForGroup returns the hull class topics for a ship group.
func TopicsForGroup(groupID int64) []string {
	return groupTopics[groupID]
}
