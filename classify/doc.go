// Package classify turns raw CRM change envelopes into semantic events.
//
// Classification is data-driven: a rule set maps exact (table, change type)
// pairs to event names, so growing the event taxonomy means adding rules,
// never editing dispatch control flow. An envelope with no matching rule is
// a miss, not an error.
package classify
