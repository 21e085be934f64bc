package concepts

import "github.com/mauv0809/factledger/internal/models"

// DefaultVersion identifies the built-in concept tables.
const DefaultVersion = "2024.1"

var incomeSchema = Schema{
	Statement: models.Income,
	Table:     "income_statements",
	Fields: []Field{
		{Name: "revenue"},
		{Name: "cost_of_revenue"},
		{Name: "gross_profit"},
		{Name: "operating_expenses"},
		{Name: "research_and_development"},
		{Name: "selling_general_and_administrative"},
		{Name: "operating_income"},
		{Name: "interest_expense"},
		{Name: "interest_income"},
		{Name: "other_income_expense"},
		{Name: "income_before_tax"},
		{Name: "income_tax_expense"},
		{Name: "net_income"},
		{Name: "earnings_per_share_basic", PerShare: true},
		{Name: "earnings_per_share_diluted", PerShare: true},
	},
	Anchors: []string{"revenue", "net_income"},
}

var balanceSchema = Schema{
	Statement: models.Balance,
	Table:     "balance_sheets",
	Fields: []Field{
		{Name: "cash_and_cash_equivalents"},
		{Name: "short_term_investments"},
		{Name: "accounts_receivable"},
		{Name: "inventory"},
		{Name: "other_current_assets"},
		{Name: "total_current_assets"},
		{Name: "property_plant_equipment"},
		{Name: "goodwill"},
		{Name: "intangible_assets"},
		{Name: "long_term_investments"},
		{Name: "other_non_current_assets"},
		{Name: "total_non_current_assets"},
		{Name: "total_assets"},
		{Name: "accounts_payable"},
		{Name: "short_term_debt"},
		{Name: "other_current_liabilities"},
		{Name: "total_current_liabilities"},
		{Name: "long_term_debt"},
		{Name: "other_non_current_liabilities"},
		{Name: "total_non_current_liabilities"},
		{Name: "total_liabilities"},
		{Name: "common_stock"},
		{Name: "retained_earnings"},
		{Name: "additional_paid_in_capital"},
		{Name: "other_equity"},
		{Name: "total_equity"},
		{Name: "total_liabilities_and_equity"},
	},
	Anchors: []string{"total_assets", "total_liabilities"},
}

var cashFlowSchema = Schema{
	Statement: models.CashFlow,
	Table:     "cash_flow_statements",
	Fields: []Field{
		{Name: "net_income"},
		{Name: "depreciation_amortization"},
		{Name: "accounts_receivable_change"},
		{Name: "inventory_change"},
		{Name: "accounts_payable_change"},
		{Name: "other_working_capital_change"},
		{Name: "other_non_cash_items"},
		{Name: "net_cash_from_operating_activities"},
		{Name: "capital_expenditures"},
		{Name: "acquisitions"},
		{Name: "investments_purchased"},
		{Name: "investments_sold"},
		{Name: "other_investing_activities"},
		{Name: "net_cash_from_investing_activities"},
		{Name: "debt_issued"},
		{Name: "debt_repayment"},
		{Name: "common_stock_issued"},
		{Name: "common_stock_repurchased"},
		{Name: "dividends_paid"},
		{Name: "other_financing_activities"},
		{Name: "net_cash_from_financing_activities"},
		{Name: "net_change_in_cash"},
		{Name: "cash_at_beginning_of_period"},
		{Name: "cash_at_end_of_period"},
	},
	Anchors: []string{
		"net_cash_from_operating_activities",
		"net_cash_from_investing_activities",
		"net_cash_from_financing_activities",
		"net_change_in_cash",
	},
}

// US-GAAP concept names per statement. Several concepts may feed one field;
// the most recently filed fact wins regardless of which concept supplied it.
var defaultTables = map[models.Statement]Table{
	models.Income: {
		"Revenues": "revenue",
		"RevenueFromContractWithCustomerExcludingAssessedTax": "revenue",
		"SalesRevenueNet":                        "revenue",
		"CostOfGoodsAndServicesSold":             "cost_of_revenue",
		"CostOfRevenue":                          "cost_of_revenue",
		"GrossProfit":                            "gross_profit",
		"OperatingExpenses":                      "operating_expenses",
		"ResearchAndDevelopmentExpense":          "research_and_development",
		"SellingGeneralAndAdministrativeExpense": "selling_general_and_administrative",
		"OperatingIncomeLoss":                    "operating_income",
		"InterestExpense":                        "interest_expense",
		"InterestIncome":                         "interest_income",
		"OtherIncomeExpense":                     "other_income_expense",
		"IncomeBeforeEquityMethodInvestments":    "income_before_tax",
		"IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest": "income_before_tax",
		"IncomeTaxExpenseBenefit": "income_tax_expense",
		"NetIncomeLoss":           "net_income",
		"EarningsPerShareBasic":   "earnings_per_share_basic",
		"EarningsPerShareDiluted": "earnings_per_share_diluted",
	},
	models.Balance: {
		"CashAndCashEquivalentsAtCarryingValue":                        "cash_and_cash_equivalents",
		"CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalents": "cash_and_cash_equivalents",
		"ShortTermInvestments":                                          "short_term_investments",
		"AccountsReceivableNetCurrent":                                  "accounts_receivable",
		"InventoryNet":                                                  "inventory",
		"OtherCurrentAssets":                                            "other_current_assets",
		"AssetsCurrent":                                                 "total_current_assets",
		"PropertyPlantAndEquipmentNet":                                  "property_plant_equipment",
		"Goodwill":                                                      "goodwill",
		"IntangibleAssetsNetExcludingGoodwill":                          "intangible_assets",
		"LongTermInvestments":                                           "long_term_investments",
		"OtherNoncurrentAssets":                                         "other_non_current_assets",
		"AssetsNoncurrent":                                              "total_non_current_assets",
		"Assets":                                                        "total_assets",
		"AccountsPayableCurrent":                                        "accounts_payable",
		"ShortTermDebt":                                                 "short_term_debt",
		"OtherCurrentLiabilities":                                       "other_current_liabilities",
		"LiabilitiesCurrent":                                            "total_current_liabilities",
		"LongTermDebt":                                                  "long_term_debt",
		"OtherNoncurrentLiabilities":                                    "other_non_current_liabilities",
		"LiabilitiesNoncurrent":                                         "total_non_current_liabilities",
		"Liabilities":                                                   "total_liabilities",
		"CommonStockValue":                                              "common_stock",
		"RetainedEarningsAccumulatedDeficit":                            "retained_earnings",
		"AdditionalPaidInCapital":                                       "additional_paid_in_capital",
		"OtherEquity":                                                   "other_equity",
		"StockholdersEquity":                                            "total_equity",
		"LiabilitiesAndStockholdersEquity":                              "total_liabilities_and_equity",
	},
	models.CashFlow: {
		"NetIncomeLoss":                                "net_income",
		"DepreciationDepletionAndAmortization":         "depreciation_amortization",
		"IncreaseDecreaseInAccountsReceivable":         "accounts_receivable_change",
		"IncreaseDecreaseInInventory":                  "inventory_change",
		"IncreaseDecreaseInAccountsPayable":            "accounts_payable_change",
		"OtherWorkingCapitalChanges":                   "other_working_capital_change",
		"OtherNoncashItems":                            "other_non_cash_items",
		"NetCashProvidedByUsedInOperatingActivities":   "net_cash_from_operating_activities",
		"PaymentsToAcquirePropertyPlantAndEquipment":   "capital_expenditures",
		"AcquisitionsDispositionsOfBusinessesNet":      "acquisitions",
		"PurchasesOfInvestments":                       "investments_purchased",
		"SalesMaturitiesOfInvestmentsSecurities":       "investments_sold",
		"OtherInvestingActivities":                     "other_investing_activities",
		"NetCashProvidedByUsedInInvestingActivities":   "net_cash_from_investing_activities",
		"ProceedsFromDebt":                             "debt_issued",
		"RepaymentsOfDebt":                             "debt_repayment",
		"ProceedsFromIssuanceOfCommonStock":            "common_stock_issued",
		"PaymentsForRepurchaseOfCommonStock":           "common_stock_repurchased",
		"DividendsPaid":                                "dividends_paid",
		"OtherFinancingActivities":                     "other_financing_activities",
		"NetCashProvidedByUsedInFinancingActivities":   "net_cash_from_financing_activities",
		"CashAndCashEquivalentsPeriodIncreaseDecrease": "net_change_in_cash",
		"CashAndCashEquivalentsAtBeginningOfPeriod":    "cash_at_beginning_of_period",
		"CashAndCashEquivalentsAtEndOfPeriod":          "cash_at_end_of_period",
	},
}
