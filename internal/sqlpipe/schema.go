package sqlpipe

// DefaultSchema is the warehouse schema shown to the model.
const DefaultSchema = `
Available Tables:
- sales(date DATE, region TEXT, product TEXT, units_sold INTEGER, revenue NUMERIC)
- churn(month DATE, segment TEXT, churned_customers INTEGER)
`
