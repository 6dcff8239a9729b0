// Package realtime subscribes to row changes over a Supabase Realtime style
// websocket (Phoenix channel protocol).
//
// Each Feed holds one websocket connection joined to a single table topic
// ("realtime:<schema>:<table>") with a postgres_changes binding for all
// events. The server's postgres_changes messages are decoded into
// model.ChangeEvent and delivered in arrival order.
package realtime
