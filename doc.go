/*
Package cron is the scheduling engine of mcron: calendar schedules, the table of
active entries partitioned by owner, and the executor loop that sleeps until the
next entry is due and serves reload requests in between. Field syntax follows
github.com/robfig/cron; evaluation, including the traditional OR of
day-of-month and day-of-week, is done here.
*/
package cron
